package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/wdqms/internal/api"
	"github.com/lox/wdqms/internal/models"
	"github.com/lox/wdqms/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(t *testing.T, st *store.Store, wigosID string, ts time.Time, received, expected int64) {
	t.Helper()
	station := models.Station{WigosID: wigosID, Name: "Station " + wigosID, Longitude: 36.9, Latitude: -1.3, InOSCAR: true}
	_, err := st.ReconcileRow(context.Background(), &station, models.Transmission{
		WigosID:      wigosID,
		Variable:     models.VariablePressure,
		Received:     sql.NullInt64{Int64: received, Valid: true},
		Expected:     sql.NullInt64{Int64: expected, Valid: true},
		ReceivedRate: float64(received) * 100 / float64(expected),
		ReceivedAt:   ts,
	})
	require.NoError(t, err)
}

func get(t *testing.T, srv *api.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	st := setupTestStore(t)
	srv := api.New(st, "", nil)

	w := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status           string `json:"status"`
		MigrationVersion int    `json:"migration_version"`
		Stations         int    `json:"stations"`
		Transmissions    int    `json:"transmissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Positive(t, body.MigrationVersion)
	assert.Zero(t, body.Stations)
	assert.Zero(t, body.Transmissions)

	seed(t, st, "A", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	seed(t, st, "A", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), 5, 10)
	seed(t, st, "B", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 6, 10)

	w = get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Stations)
	assert.Equal(t, 3, body.Transmissions)
}

func TestHealthEndpoint_DegradedAfterFailedUnit(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	run := &store.IngestRun{RunID: "r1", UnitDate: "2024-05-01", Period: "00", Variable: "pressure", Country: "KEN"}
	require.NoError(t, st.StartIngestRun(ctx, run))
	require.NoError(t, st.CompleteIngestRun(ctx, run))

	w := get(t, api.New(st, "", nil), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestSynopTransmissionRate(t *testing.T) {
	st := setupTestStore(t)
	seed(t, st, "A", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	seed(t, st, "B", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 6, 10)
	srv := api.New(st, "", nil)

	w := get(t, srv, "/api/synop-transmission-rate?frequency=daily_synop&received_date=2024-05-01")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"synop_hour":"06","avg_received_rate":50,"avg_received":5,"avg_expected":10}]`, w.Body.String())
}

func TestSynopTransmissionRate_Empty(t *testing.T) {
	w := get(t, api.New(setupTestStore(t), "", nil), "/api/synop-transmission-rate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMonthlyAndYearly(t *testing.T) {
	st := setupTestStore(t)
	seed(t, st, "A", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	seed(t, st, "A", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), 8, 10)
	srv := api.New(st, "", nil)

	w := get(t, srv, "/api/monthly-transmission-rate?year=2024&variable=pressure")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"month":"May","avg_received_rate":40,"avg_received":4,"avg_expected":10},
		{"month":"July","avg_received_rate":80,"avg_received":8,"avg_expected":10}
	]`, w.Body.String())

	w = get(t, srv, "/api/yearly-transmission-rate?station=A")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"year":2024,"avg_received_rate":60,"avg_received":6,"avg_expected":10}]`, w.Body.String())
}

func TestMonthlyGeomTransmissionRate(t *testing.T) {
	st := setupTestStore(t)
	seed(t, st, "A", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	seed(t, st, "A", time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC), 6, 10)
	srv := api.New(st, "", nil)

	w := get(t, srv, "/api/monthly-geom-transmission-rate?month=5&year=2024&variable=pressure")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [36.9, -1.3]},
			"properties": {
				"name": "Station A",
				"wigos_id": "A",
				"month": "2024-05",
				"variable": "pressure",
				"avg_received_rate": 50
			}
		}]
	}`, w.Body.String())

	w = get(t, srv, "/api/monthly-geom-transmission-rate?month=6&year=2024&variable=pressure")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, w.Body.String())
}

func TestStationsEndpoint(t *testing.T) {
	st := setupTestStore(t)
	seed(t, st, "A", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	seed(t, st, "B", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 4, 10)
	srv := api.New(st, "", nil)

	w := get(t, srv, "/api/stations?wigos_id=B")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [36.9, -1.3]},
			"properties": {"wigos_id": "B", "name": "Station B", "in_oscar": true}
		}]
	}`, w.Body.String())
}

func TestBadRequests(t *testing.T) {
	srv := api.New(setupTestStore(t), "", nil)

	tests := []struct {
		name    string
		target  string
		message string
	}{
		{"unsupported param", "/api/synop-transmission-rate?country=KEN", "unsupported parameter(s): country"},
		{"bad frequency", "/api/synop-transmission-rate?frequency=hourly", "invalid parameters"},
		{"bad date", "/api/synop-transmission-rate?frequency=daily_synop&received_date=01-05-2024", "YYYY-MM-DD"},
		{"geo missing month", "/api/monthly-geom-transmission-rate?year=2024&variable=pressure", `parameter "month" is required`},
		{"geo month out of range", "/api/monthly-geom-transmission-rate?month=13&year=2024&variable=pressure", "invalid parameters"},
		{"monthly bad year", "/api/monthly-transmission-rate?year=abc", "invalid parameters"},
		{"yearly unsupported", "/api/yearly-transmission-rate?year=2024", "unsupported parameter(s): year"},
		{"runs bad limit", "/api/ingest-runs?limit=0", "invalid limit"},
		{"runs bad failed", "/api/ingest-runs?failed=maybe", "invalid failed parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.target)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.message)
		})
	}
}

func TestIngestRunsEndpoint(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	for _, ok := range []bool{true, false, true} {
		run := &store.IngestRun{RunID: "r1", UnitDate: "2024-05-01", Period: "06", Variable: "pressure", Country: "KEN"}
		require.NoError(t, st.StartIngestRun(ctx, run))
		run.Success = ok
		run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
		require.NoError(t, st.CompleteIngestRun(ctx, run))
	}
	srv := api.New(st, "", nil)

	var body struct {
		Data []struct {
			ID         int64  `json:"id"`
			RunID      string `json:"run_id"`
			HTTPStatus *int64 `json:"http_status"`
			RowsParsed *int64 `json:"rows_parsed"`
			Success    bool   `json:"success"`
		} `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}

	w := get(t, srv, "/api/ingest-runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Meta.Count)
	require.Len(t, body.Data, 2)
	assert.Equal(t, int64(3), body.Data[0].ID)
	assert.Equal(t, "r1", body.Data[0].RunID)
	require.NotNil(t, body.Data[0].HTTPStatus)
	assert.Equal(t, int64(200), *body.Data[0].HTTPStatus)
	assert.Nil(t, body.Data[0].RowsParsed)

	w = get(t, srv, "/api/ingest-runs?failed=true")
	require.Equal(t, http.StatusOK, w.Code)
	body.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.False(t, body.Data[0].Success)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := api.New(setupTestStore(t), "", nil)
	get(t, srv, "/api/yearly-transmission-rate")

	w := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wdqms_aggregate_queries_total")
}
