package models

import "strings"

// Baseline is the station catalog WDQMS compares availability against.
const Baseline = "OSCAR"

type Period string

const (
	Period00 Period = "00"
	Period06 Period = "06"
	Period12 Period = "12"
	Period18 Period = "18"
)

var AllPeriods = []Period{Period00, Period06, Period12, Period18}

type Center string

const (
	CenterDWD   Center = "DWD"
	CenterECMWF Center = "ECMWF"
	CenterJMA   Center = "JMA"
	CenterNCEP  Center = "NCEP"
)

var AllCenters = []Center{CenterDWD, CenterECMWF, CenterJMA, CenterNCEP}

type Variable string

const (
	VariablePressure       Variable = "pressure"
	VariableTemperature    Variable = "temperature"
	VariableHumidity       Variable = "humidity"
	VariableMeridionalWind Variable = "meridional_wind"
	VariableZonalWind      Variable = "zonal_wind"
)

var AllVariables = []Variable{
	VariablePressure,
	VariableTemperature,
	VariableHumidity,
	VariableMeridionalWind,
	VariableZonalWind,
}

// DefaultVariable is used by the aggregate views when no variable is requested.
const DefaultVariable = VariablePressure

type Frequency string

const (
	FrequencyDaily   Frequency = "daily_synop"
	FrequencyMonthly Frequency = "monthly_synop"
	FrequencyYearly  Frequency = "yearly_synop"
)

func ParsePeriod(s string) (Period, error) {
	p := Period(strings.TrimSpace(s))
	for _, v := range AllPeriods {
		if p == v {
			return p, nil
		}
	}
	return "", &InvalidEnumError{Kind: "period", Value: s, Allowed: stringsOf(AllPeriods)}
}

// ParseCenter accepts center codes in any case.
func ParseCenter(s string) (Center, error) {
	c := Center(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range AllCenters {
		if c == v {
			return c, nil
		}
	}
	return "", &InvalidEnumError{Kind: "center", Value: s, Allowed: stringsOf(AllCenters)}
}

func ParseVariable(s string) (Variable, error) {
	v := Variable(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllVariables {
		if v == known {
			return v, nil
		}
	}
	return "", &InvalidEnumError{Kind: "variable", Value: s, Allowed: stringsOf(AllVariables)}
}

// JoinCenters renders centers the way the availability endpoint expects them.
func JoinCenters(centers []Center) string {
	return strings.Join(stringsOf(centers), ",")
}

func stringsOf[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
