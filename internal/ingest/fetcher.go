package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lox/wdqms/internal/httputil"
	"github.com/lox/wdqms/internal/metrics"
	"github.com/lox/wdqms/internal/models"
)

// DefaultBaseURL is the WDQMS six-hourly SYNOP availability download endpoint.
const DefaultBaseURL = "https://wdqms.wmo.int/wdqmsapi/v1/download/synop/six_hour/availability"

// Unit is one remote fetch: a single date, period and variable for one country.
type Unit struct {
	Date     time.Time
	Period   models.Period
	Variable models.Variable
	Centers  []models.Center
	Country  string
}

// Key identifies the unit in logs, audit rows and archived payloads.
func (u Unit) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", u.Date.Format(dateLayout), u.Period, u.Variable, u.Country)
}

type Fetcher struct {
	baseURL string
	client  *http.Client
	tempDir string
}

// NewFetcher returns a fetcher for baseURL. A nil client gets the default
// timeout client.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httputil.NewClient(httputil.DefaultTimeout)
	}
	return &Fetcher{baseURL: baseURL, client: client}
}

// SetTempDir overrides where snapshots are spooled. The default is os.TempDir.
func (f *Fetcher) SetTempDir(dir string) {
	f.tempDir = dir
}

// RequestURL builds the availability URL for a unit.
func (f *Fetcher) RequestURL(u Unit) string {
	params := url.Values{}
	params.Set("date", u.Date.Format(dateLayout))
	params.Set("period", string(u.Period))
	params.Set("variable", string(u.Variable))
	params.Set("centers", models.JoinCenters(u.Centers))
	params.Set("baseline", models.Baseline)
	return f.baseURL + "?" + params.Encode()
}

// Fetch downloads the snapshot for u into a temporary file. On success the
// caller owns the returned Snapshot and must Close it. Non-200 answers yield
// *models.FetchError; network failures and timeouts yield *models.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, u Unit) (*Snapshot, error) {
	start := time.Now()
	snap, status, err := f.fetch(ctx, u)

	metrics.FetchLatency.WithLabelValues(string(u.Variable)).Observe(time.Since(start).Seconds())
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	metrics.FetchRequestsTotal.WithLabelValues(string(u.Variable), string(u.Period), label).Inc()

	return snap, err
}

func (f *Fetcher) fetch(ctx context.Context, u Unit) (*Snapshot, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RequestURL(u), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &models.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, &models.FetchError{Status: resp.StatusCode, Body: string(b)}
	}

	tmp, err := os.CreateTemp(f.tempDir, "wdqms-*.csv")
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr != nil {
			return nil, resp.StatusCode, &models.TransportError{Err: copyErr}
		}
		return nil, resp.StatusCode, fmt.Errorf("write temp file: %w", closeErr)
	}

	return &Snapshot{Status: resp.StatusCode, Size: n, path: tmp.Name()}, resp.StatusCode, nil
}

// Snapshot is a downloaded availability CSV spooled to disk.
type Snapshot struct {
	Status int
	Size   int64
	path   string
}

// Path is the location of the spooled file; it is gone after Close.
func (s *Snapshot) Path() string { return s.path }

func (s *Snapshot) Rows() (*ParseResult, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	return ParseSnapshot(file)
}

func (s *Snapshot) Bytes() ([]byte, error) {
	return os.ReadFile(s.path)
}

// Close removes the spooled file. It is safe to call more than once.
func (s *Snapshot) Close() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
