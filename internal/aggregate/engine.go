package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/lox/wdqms/internal/ingest"
	"github.com/lox/wdqms/internal/metrics"
	"github.com/lox/wdqms/internal/models"
	"github.com/lox/wdqms/internal/store"
)

// Reader is the read side of the store the views are computed from.
type Reader interface {
	ListTransmissionPoints(ctx context.Context, f store.TransmissionFilter) ([]models.TransmissionPoint, error)
	LatestReceivedAt(ctx context.Context, variable models.Variable) (time.Time, bool, error)
	ListStations(ctx context.Context, wigosID string) ([]models.Station, error)
}

// Engine computes the aggregate views. Every method validates its parameters
// before touching the store and returns an empty result, never an error, when
// nothing matches.
type Engine struct {
	store Reader
}

func NewEngine(r Reader) *Engine {
	return &Engine{store: r}
}

// IsInvalid reports whether err was caused by bad query parameters rather
// than by the store.
func IsInvalid(err error) bool {
	var (
		unsupported *models.UnsupportedParameterError
		missing     *models.MissingParameterError
		validation  *models.ValidationError
		dateFormat  *models.InvalidDateFormatError
		enum        *models.InvalidEnumError
	)
	return errors.As(err, &unsupported) ||
		errors.As(err, &missing) ||
		errors.As(err, &validation) ||
		errors.As(err, &dateFormat) ||
		errors.As(err, &enum)
}

func observe(view string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case IsInvalid(err):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	metrics.AggregateQueries.WithLabelValues(view, outcome).Inc()
}

// Hourly averages rates by synoptic hour. With a frequency the rows are
// scoped to the day, month (in any year) or year of received_date, which
// defaults to the latest stored timestamp.
func (e *Engine) Hourly(ctx context.Context, params url.Values) (out []HourBucket, err error) {
	defer func() { observe("hourly", err) }()

	if err := checkParams(params, hourlySupported, nil); err != nil {
		return nil, err
	}
	q := hourlyQuery{
		Station:      params.Get("station"),
		Frequency:    params.Get("frequency"),
		ReceivedDate: params.Get("received_date"),
		Variable:     variableParam(params),
	}
	if err := validateStruct(q); err != nil {
		return nil, err
	}

	filter := store.TransmissionFilter{WigosID: q.Station, Variable: models.Variable(q.Variable)}

	if q.Frequency != "" {
		var anchor time.Time
		if q.ReceivedDate != "" {
			if anchor, err = ingest.ParseDate("received_date", q.ReceivedDate); err != nil {
				return nil, err
			}
		} else {
			latest, ok, err := e.store.LatestReceivedAt(ctx, "")
			if err != nil {
				return nil, fmt.Errorf("latest received_at: %w", err)
			}
			if !ok {
				return []HourBucket{}, nil
			}
			anchor = latest
		}

		switch models.Frequency(q.Frequency) {
		case models.FrequencyDaily:
			filter.Date = anchor
		case models.FrequencyMonthly:
			filter.Month = int(anchor.Month())
		case models.FrequencyYearly:
			filter.Year = anchor.Year()
		}
	} else if q.ReceivedDate != "" {
		if _, err := ingest.ParseDate("received_date", q.ReceivedDate); err != nil {
			return nil, err
		}
	}

	points, err := e.store.ListTransmissionPoints(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	return GroupByHour(points), nil
}

// Monthly averages one year's rates per calendar month. The year defaults to
// the latest stored year.
func (e *Engine) Monthly(ctx context.Context, params url.Values) (out []MonthBucket, err error) {
	defer func() { observe("monthly", err) }()

	if err := checkParams(params, monthlySupported, nil); err != nil {
		return nil, err
	}
	q := monthlyQuery{
		Station:  params.Get("station"),
		Year:     params.Get("year"),
		Variable: variableParam(params),
	}
	if err := validateStruct(q); err != nil {
		return nil, err
	}

	var year int
	if q.Year != "" {
		if year, err = parseYear(q.Year); err != nil {
			return nil, err
		}
	} else {
		latest, ok, err := e.store.LatestReceivedAt(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("latest received_at: %w", err)
		}
		if !ok {
			return []MonthBucket{}, nil
		}
		year = latest.Year()
	}

	points, err := e.store.ListTransmissionPoints(ctx, store.TransmissionFilter{
		WigosID:  q.Station,
		Variable: models.Variable(q.Variable),
		Year:     year,
	})
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	return GroupByMonth(points), nil
}

func (e *Engine) Yearly(ctx context.Context, params url.Values) (out []YearBucket, err error) {
	defer func() { observe("yearly", err) }()

	if err := checkParams(params, yearlySupported, nil); err != nil {
		return nil, err
	}
	q := yearlyQuery{Station: params.Get("station"), Variable: variableParam(params)}
	if err := validateStruct(q); err != nil {
		return nil, err
	}

	points, err := e.store.ListTransmissionPoints(ctx, store.TransmissionFilter{
		WigosID:  q.Station,
		Variable: models.Variable(q.Variable),
	})
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	return GroupByYear(points), nil
}

// MonthlyGeo averages each station's rate for one month as GeoJSON points.
// month, year and variable are all required.
func (e *Engine) MonthlyGeo(ctx context.Context, params url.Values) (fc *geojson.FeatureCollection, err error) {
	defer func() { observe("monthly_geo", err) }()

	if err := checkParams(params, geoSupported, geoSupported); err != nil {
		return nil, err
	}
	q := geoQuery{
		Month:    params.Get("month"),
		Year:     params.Get("year"),
		Variable: params.Get("variable"),
	}
	if err := validateStruct(q); err != nil {
		return nil, err
	}
	month, err := q.month()
	if err != nil {
		return nil, err
	}
	year, err := parseYear(q.Year)
	if err != nil {
		return nil, err
	}

	points, err := e.store.ListTransmissionPoints(ctx, store.TransmissionFilter{
		Variable: models.Variable(q.Variable),
		Month:    month,
		Year:     year,
	})
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	return StationMonthFeatures(GroupByStationMonth(points)), nil
}

// Stations returns the station catalog, optionally a single station, as
// GeoJSON points.
func (e *Engine) Stations(ctx context.Context, params url.Values) (fc *geojson.FeatureCollection, err error) {
	defer func() { observe("stations", err) }()

	if err := checkParams(params, stationsSupported, nil); err != nil {
		return nil, err
	}
	stations, err := e.store.ListStations(ctx, params.Get("wigos_id"))
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return StationFeatures(stations), nil
}

func StationMonthFeatures(rows []StationMonth) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		f := geojson.NewFeature(orb.Point{r.Longitude, r.Latitude})
		f.Properties["name"] = r.Name
		f.Properties["wigos_id"] = r.WigosID
		f.Properties["month"] = r.MonthLabel()
		f.Properties["variable"] = string(r.Variable)
		f.Properties["avg_received_rate"] = r.AvgReceivedRate
		fc.Append(f)
	}
	return fc
}

func StationFeatures(stations []models.Station) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range stations {
		f := geojson.NewFeature(orb.Point{s.Longitude, s.Latitude})
		f.Properties["wigos_id"] = s.WigosID
		f.Properties["name"] = s.Name
		f.Properties["in_oscar"] = s.InOSCAR
		fc.Append(f)
	}
	return fc
}
