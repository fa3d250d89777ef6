package ingest

import (
	"context"
	"time"
)

// UnitReport summarises one processed unit. It is what the report sink
// publishes and what Summary collects for failed units.
type UnitReport struct {
	RunID           string    `json:"run_id"`
	Date            string    `json:"date"`
	Period          string    `json:"period"`
	Variable        string    `json:"variable"`
	Country         string    `json:"country"`
	Centers         string    `json:"centers"`
	HTTPStatus      int       `json:"http_status,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	RowsParsed      int       `json:"rows_parsed"`
	ParseErrors     int       `json:"parse_errors"`
	RowsKept        int       `json:"rows_kept"`
	StationsCreated int       `json:"stations_created"`
	Created         int       `json:"created"`
	Updated         int       `json:"updated"`
	Unchanged       int       `json:"unchanged"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Key matches Unit.Key for the unit the report describes.
func (r UnitReport) Key() string {
	return r.Date + "/" + r.Period + "/" + r.Variable + "/" + r.Country
}

// ReportSink receives a report for every finished unit.
type ReportSink interface {
	Publish(ctx context.Context, report UnitReport) error
}

// NopSink discards reports.
type NopSink struct{}

func (NopSink) Publish(context.Context, UnitReport) error { return nil }

// Summary is the outcome of one Runner.Run.
type Summary struct {
	RunID           string
	Units           int
	Succeeded       int
	Failed          int
	StationsCreated int
	Created         int
	Updated         int
	Unchanged       int
	Failures        []UnitReport
}

func (s *Summary) add(r UnitReport) {
	s.Units++
	s.StationsCreated += r.StationsCreated
	s.Created += r.Created
	s.Updated += r.Updated
	s.Unchanged += r.Unchanged
	if r.Success {
		s.Succeeded++
		return
	}
	s.Failed++
	s.Failures = append(s.Failures, r)
}
