package aggregate

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/lox/wdqms/internal/models"
)

// Means are the three averages reported by the hourly, monthly and yearly
// views. Count averages skip null counts and are nil when every count in the
// bucket is null.
type Means struct {
	AvgReceivedRate float64  `json:"avg_received_rate"`
	AvgReceived     *float64 `json:"avg_received"`
	AvgExpected     *float64 `json:"avg_expected"`
}

type HourBucket struct {
	SynopHour string `json:"synop_hour"`
	Means
}

type MonthBucket struct {
	Month string `json:"month"`
	Means
}

type YearBucket struct {
	Year int `json:"year"`
	Means
}

// StationMonth is the mean rate of one station and variable over one month.
type StationMonth struct {
	WigosID         string
	Name            string
	Longitude       float64
	Latitude        float64
	Variable        models.Variable
	Month           time.Time
	AvgReceivedRate float64
}

// MonthLabel formats the month as YYYY-MM.
func (s StationMonth) MonthLabel() string {
	return s.Month.Format("2006-01")
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) addCount(v sql.NullInt64) {
	if v.Valid {
		m.add(float64(v.Int64))
	}
}

func (m mean) value(decimals int) float64 {
	if m.n == 0 {
		return 0
	}
	return models.RoundTo(m.sum/float64(m.n), decimals)
}

func (m mean) ptr(decimals int) *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.value(decimals)
	return &v
}

type accumulator struct {
	first    models.TransmissionPoint
	rate     mean
	received mean
	expected mean
}

func (a *accumulator) add(p models.TransmissionPoint) {
	a.rate.add(p.ReceivedRate)
	a.received.addCount(p.Received)
	a.expected.addCount(p.Expected)
}

func (a *accumulator) means(decimals int) Means {
	return Means{
		AvgReceivedRate: a.rate.value(decimals),
		AvgReceived:     a.received.ptr(decimals),
		AvgExpected:     a.expected.ptr(decimals),
	}
}

// groupBy buckets points by key and returns the keys sorted by compare.
func groupBy[K comparable](points []models.TransmissionPoint, key func(models.TransmissionPoint) K, compare func(a, b K) int) ([]K, map[K]*accumulator) {
	buckets := make(map[K]*accumulator)
	var keys []K
	for _, p := range points {
		k := key(p)
		acc, ok := buckets[k]
		if !ok {
			acc = &accumulator{first: p}
			buckets[k] = acc
			keys = append(keys, k)
		}
		acc.add(p)
	}
	slices.SortFunc(keys, compare)
	return keys, buckets
}

// GroupByHour buckets points by UTC hour of day, keyed "HH".
func GroupByHour(points []models.TransmissionPoint) []HourBucket {
	keys, buckets := groupBy(points, func(p models.TransmissionPoint) int {
		return p.ReceivedAt.UTC().Hour()
	}, cmp.Compare[int])

	out := make([]HourBucket, 0, len(keys))
	for _, h := range keys {
		out = append(out, HourBucket{SynopHour: fmt.Sprintf("%02d", h), Means: buckets[h].means(0)})
	}
	return out
}

// GroupByMonth buckets points by calendar month and labels each with its
// English name. Points from different years sharing a month share a bucket.
func GroupByMonth(points []models.TransmissionPoint) []MonthBucket {
	keys, buckets := groupBy(points, func(p models.TransmissionPoint) time.Month {
		return p.ReceivedAt.UTC().Month()
	}, cmp.Compare[time.Month])

	out := make([]MonthBucket, 0, len(keys))
	for _, m := range keys {
		out = append(out, MonthBucket{Month: m.String(), Means: buckets[m].means(0)})
	}
	return out
}

func GroupByYear(points []models.TransmissionPoint) []YearBucket {
	keys, buckets := groupBy(points, func(p models.TransmissionPoint) int {
		return p.ReceivedAt.UTC().Year()
	}, cmp.Compare[int])

	out := make([]YearBucket, 0, len(keys))
	for _, y := range keys {
		out = append(out, YearBucket{Year: y, Means: buckets[y].means(0)})
	}
	return out
}

type stationMonthKey struct {
	wigosID  string
	variable models.Variable
	month    time.Time
}

func compareStationMonth(a, b stationMonthKey) int {
	return cmp.Or(
		cmp.Compare(a.wigosID, b.wigosID),
		cmp.Compare(a.variable, b.variable),
		a.month.Compare(b.month),
	)
}

// GroupByStationMonth averages the rate per station, variable and month,
// ordered by wigos_id. Rates are rounded to 2 decimals.
func GroupByStationMonth(points []models.TransmissionPoint) []StationMonth {
	keys, buckets := groupBy(points, func(p models.TransmissionPoint) stationMonthKey {
		t := p.ReceivedAt.UTC()
		return stationMonthKey{
			wigosID:  p.WigosID,
			variable: p.Variable,
			month:    time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC),
		}
	}, compareStationMonth)

	out := make([]StationMonth, 0, len(keys))
	for _, k := range keys {
		acc := buckets[k]
		out = append(out, StationMonth{
			WigosID:         k.wigosID,
			Name:            acc.first.StationName,
			Longitude:       acc.first.Longitude,
			Latitude:        acc.first.Latitude,
			Variable:        k.variable,
			Month:           k.month,
			AvgReceivedRate: acc.rate.value(2),
		})
	}
	return out
}
