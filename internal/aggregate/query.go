package aggregate

import (
	"net/url"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/lox/wdqms/internal/models"
)

var validate = validator.New()

var (
	hourlySupported   = []string{"station", "frequency", "received_date", "variable"}
	monthlySupported  = []string{"station", "year", "variable"}
	yearlySupported   = []string{"station", "variable"}
	geoSupported      = []string{"month", "year", "variable"}
	stationsSupported = []string{"wigos_id"}
)

type hourlyQuery struct {
	Station      string
	Frequency    string `validate:"omitempty,oneof=daily_synop monthly_synop yearly_synop"`
	ReceivedDate string
	Variable     string `validate:"required,oneof=pressure temperature humidity meridional_wind zonal_wind"`
}

type monthlyQuery struct {
	Station  string
	Year     string `validate:"omitempty,number,len=4"`
	Variable string `validate:"required,oneof=pressure temperature humidity meridional_wind zonal_wind"`
}

type yearlyQuery struct {
	Station  string
	Variable string `validate:"required,oneof=pressure temperature humidity meridional_wind zonal_wind"`
}

type geoQuery struct {
	Month    string `validate:"required,number,max=2"`
	Year     string `validate:"required,number,len=4"`
	Variable string `validate:"required,oneof=pressure temperature humidity meridional_wind zonal_wind"`
}

// checkParams rejects parameter names outside supported, then any of
// required that is absent.
func checkParams(params url.Values, supported, required []string) error {
	var unsupported []string
	for name := range params {
		if !slices.Contains(supported, name) {
			unsupported = append(unsupported, name)
		}
	}
	if len(unsupported) > 0 {
		slices.Sort(unsupported)
		return &models.UnsupportedParameterError{Params: unsupported, Supported: supported}
	}
	for _, name := range required {
		if !params.Has(name) {
			return &models.MissingParameterError{Param: name}
		}
	}
	return nil
}

func validateStruct(q any) error {
	if err := validate.Struct(q); err != nil {
		return &models.ValidationError{Err: err}
	}
	return nil
}

func variableParam(params url.Values) string {
	if params.Has("variable") {
		return params.Get("variable")
	}
	return string(models.DefaultVariable)
}

// month converts a validated month string and checks it is 1..12.
func (q geoQuery) month() (int, error) {
	m, err := strconv.Atoi(q.Month)
	if err != nil {
		return 0, &models.ValidationError{Err: err}
	}
	if err := validate.Var(m, "min=1,max=12"); err != nil {
		return 0, &models.ValidationError{Err: err}
	}
	return m, nil
}

// parseYear converts a validated four-digit year and rejects year 0, which
// the store filter would read as "any year".
func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, &models.ValidationError{Err: err}
	}
	if err := validate.Var(y, "min=1"); err != nil {
		return 0, &models.ValidationError{Err: err}
	}
	return y, nil
}
