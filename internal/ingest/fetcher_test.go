package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wdqms/internal/httputil"
	"github.com/lox/wdqms/internal/models"
)

func testUnit() Unit {
	return Unit{
		Date:     day(2024, 5, 1),
		Period:   models.Period06,
		Variable: models.VariablePressure,
		Centers:  []models.Center{models.CenterDWD, models.CenterECMWF},
		Country:  "KEN",
	}
}

func TestUnitKey(t *testing.T) {
	assert.Equal(t, "2024-05-01/06/pressure/KEN", testUnit().Key())
}

func TestFetcher_RequestParams(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"date":     q.Get("date"),
			"period":   q.Get("period"),
			"variable": q.Get("variable"),
			"centers":  q.Get("centers"),
			"baseline": q.Get("baseline"),
		}
		w.Write([]byte(snapshotHeader + "A,Good,36.9,-1.3,True,3,4,KEN,pressure,2024-05-01 06:00:00+00:00\n"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, srv.Client())
	f.SetTempDir(t.TempDir())

	snap, err := f.Fetch(context.Background(), testUnit())
	require.NoError(t, err)
	defer snap.Close()

	assert.Equal(t, map[string]string{
		"date":     "2024-05-01",
		"period":   "06",
		"variable": "pressure",
		"centers":  "DWD,ECMWF",
		"baseline": "OSCAR",
	}, got)
	assert.Equal(t, http.StatusOK, snap.Status)
	assert.Positive(t, snap.Size)

	res, err := snap.Rows()
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "A", res.Rows[0].WigosID)
}

func TestFetcher_CloseRemovesSpool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(snapshotHeader))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, srv.Client())
	f.SetTempDir(t.TempDir())

	snap, err := f.Fetch(context.Background(), testUnit())
	require.NoError(t, err)

	_, err = os.Stat(snap.Path())
	require.NoError(t, err)

	require.NoError(t, snap.Close())
	_, err = os.Stat(snap.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, snap.Close())
}

func TestFetcher_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no data for date", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, srv.Client())
	f.SetTempDir(dir)

	snap, err := f.Fetch(context.Background(), testUnit())
	assert.Nil(t, snap)
	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Contains(t, fetchErr.Body, "no data for date")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, httputil.NewClient(50*time.Millisecond))
	_, err := f.Fetch(context.Background(), testUnit())

	var transportErr *models.TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
}

func TestFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(url, nil).Fetch(context.Background(), testUnit())
	var transportErr *models.TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
}

func TestFetcher_DefaultBaseURL(t *testing.T) {
	f := NewFetcher("", nil)
	u := f.RequestURL(testUnit())
	assert.Contains(t, u, DefaultBaseURL+"?")
	assert.Contains(t, u, "baseline=OSCAR")
}
