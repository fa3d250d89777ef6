package aggregate

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wdqms/internal/models"
)

func point(wigosID string, at time.Time, rate float64, received, expected int64) models.TransmissionPoint {
	return models.TransmissionPoint{
		WigosID:      wigosID,
		StationName:  "Station " + wigosID,
		Longitude:    36.9,
		Latitude:     -1.3,
		Variable:     models.VariablePressure,
		Received:     sql.NullInt64{Int64: received, Valid: true},
		Expected:     sql.NullInt64{Int64: expected, Valid: true},
		ReceivedRate: rate,
		ReceivedAt:   at,
	}
}

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 { return &v }

func TestGroupByHour(t *testing.T) {
	got := GroupByHour([]models.TransmissionPoint{
		point("A", at(2024, 5, 1, 18), 100, 4, 4),
		point("A", at(2024, 5, 1, 6), 40, 4, 10),
		point("B", at(2024, 5, 1, 6), 60, 6, 10),
		point("A", at(2024, 5, 2, 0), 50, 1, 2),
	})

	assert.Equal(t, []HourBucket{
		{SynopHour: "00", Means: Means{AvgReceivedRate: 50, AvgReceived: ptr(1), AvgExpected: ptr(2)}},
		{SynopHour: "06", Means: Means{AvgReceivedRate: 50, AvgReceived: ptr(5), AvgExpected: ptr(10)}},
		{SynopHour: "18", Means: Means{AvgReceivedRate: 100, AvgReceived: ptr(4), AvgExpected: ptr(4)}},
	}, got)
}

func TestGroupByHour_RoundsToWhole(t *testing.T) {
	got := GroupByHour([]models.TransmissionPoint{
		point("A", at(2024, 5, 1, 12), 33.33, 1, 3),
		point("B", at(2024, 5, 1, 12), 66.67, 2, 3),
		point("C", at(2024, 5, 1, 12), 50, 2, 4),
	})
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].AvgReceivedRate)
	assert.Equal(t, ptr(2), got[0].AvgReceived)
	assert.Equal(t, ptr(3), got[0].AvgExpected)
}

func TestGroupByHour_NullCounts(t *testing.T) {
	p := point("A", at(2024, 5, 1, 6), 0, 0, 0)
	p.Expected = sql.NullInt64{}
	q := point("B", at(2024, 5, 1, 6), 0, 0, 0)
	q.Received = sql.NullInt64{}
	q.Expected = sql.NullInt64{}

	got := GroupByHour([]models.TransmissionPoint{p, q})
	require.Len(t, got, 1)
	assert.Equal(t, ptr(0), got[0].AvgReceived)
	assert.Nil(t, got[0].AvgExpected)
}

func TestGroupByHour_Empty(t *testing.T) {
	got := GroupByHour(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGroupByMonth(t *testing.T) {
	got := GroupByMonth([]models.TransmissionPoint{
		point("A", at(2024, 3, 10, 0), 20, 2, 10),
		point("A", at(2024, 1, 10, 0), 80, 8, 10),
		point("A", at(2024, 3, 11, 0), 40, 4, 10),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "January", got[0].Month)
	assert.Equal(t, 80.0, got[0].AvgReceivedRate)
	assert.Equal(t, "March", got[1].Month)
	assert.Equal(t, 30.0, got[1].AvgReceivedRate)
	assert.Equal(t, ptr(3), got[1].AvgReceived)
}

func TestGroupByYear(t *testing.T) {
	got := GroupByYear([]models.TransmissionPoint{
		point("A", at(2024, 3, 10, 0), 20, 2, 10),
		point("A", at(2023, 1, 10, 0), 80, 8, 10),
	})
	require.Len(t, got, 2)
	assert.Equal(t, 2023, got[0].Year)
	assert.Equal(t, 2024, got[1].Year)
	assert.Equal(t, 20.0, got[1].AvgReceivedRate)
}

func TestGroupByStationMonth(t *testing.T) {
	got := GroupByStationMonth([]models.TransmissionPoint{
		point("B", at(2024, 5, 1, 0), 60, 6, 10),
		point("A", at(2024, 5, 1, 0), 10, 1, 10),
		point("A", at(2024, 5, 2, 6), 20, 2, 10),
		point("A", at(2024, 5, 31, 18), 25, 1, 4),
	})
	require.Len(t, got, 2)

	assert.Equal(t, "A", got[0].WigosID)
	assert.Equal(t, "Station A", got[0].Name)
	assert.Equal(t, 18.33, got[0].AvgReceivedRate)
	assert.Equal(t, "2024-05", got[0].MonthLabel())
	assert.Equal(t, models.VariablePressure, got[0].Variable)

	assert.Equal(t, "B", got[1].WigosID)
	assert.Equal(t, 60.0, got[1].AvgReceivedRate)
}
