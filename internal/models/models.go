package models

import (
	"database/sql"
	"math"
	"time"
)

type Station struct {
	WigosID   string
	Name      string
	Longitude float64
	Latitude  float64
	InOSCAR   bool
}

type Transmission struct {
	ID           int64
	WigosID      string
	Variable     Variable
	Received     sql.NullInt64
	Expected     sql.NullInt64
	ReceivedRate float64 // percentage, two decimals
	ReceivedAt   time.Time
}

// Country is an entry in the ingest country catalog, keyed by ISO 3166 alpha-3 code.
type Country struct {
	Code string
	Name string
}

// RawRow is one line of an availability snapshot as published by WDQMS.
type RawRow struct {
	WigosID     string
	Name        string
	Longitude   float64
	Latitude    float64
	InOSCAR     bool
	Received    sql.NullInt64
	Expected    sql.NullInt64
	CountryCode string
	Variable    Variable
	Date        time.Time
}

// NormalizedRow is a RawRow with its derived transmission rate.
type NormalizedRow struct {
	RawRow
	Rate float64
}

func (r NormalizedRow) Station() Station {
	return Station{
		WigosID:   r.WigosID,
		Name:      r.Name,
		Longitude: r.Longitude,
		Latitude:  r.Latitude,
		InOSCAR:   r.InOSCAR,
	}
}

func (r NormalizedRow) Transmission() Transmission {
	return Transmission{
		WigosID:      r.WigosID,
		Variable:     r.Variable,
		Received:     r.Received,
		Expected:     r.Expected,
		ReceivedRate: RoundTo(r.Rate, 2),
		ReceivedAt:   r.Date.UTC(),
	}
}

// TransmissionPoint is the projection of a Transmission used by the aggregate views.
type TransmissionPoint struct {
	WigosID      string
	StationName  string
	Longitude    float64
	Latitude     float64
	Variable     Variable
	Received     sql.NullInt64
	Expected     sql.NullInt64
	ReceivedRate float64
	ReceivedAt   time.Time
}

// RoundTo rounds half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
