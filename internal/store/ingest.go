package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun records one fetch unit (date, period, variable, country) for auditing.
type IngestRun struct {
	ID                int64
	RunID             string // shared by every unit of one ingest invocation
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	UnitDate          string
	Period            string
	Variable          string
	Country           string
	Centers           string
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RowsParsed        sql.NullInt64
	RowsKept          sql.NullInt64 // after country filter and dedupe
	RowsStored        sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun inserts the audit row for a unit and returns it with its ID set.
func (s *Store) StartIngestRun(ctx context.Context, run *IngestRun) error {
	run.StartedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, started_at, unit_date, period, variable, country, centers, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE)
	`, run.RunID, run.StartedAt, run.UnitDate, run.Period, run.Variable, run.Country, run.Centers)
	if err != nil {
		return err
	}

	run.ID, err = result.LastInsertId()
	return err
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			rows_parsed = ?,
			rows_kept = ?,
			rows_stored = ?,
			parse_errors = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RowsParsed, run.RowsKept,
		run.RowsStored, run.ParseErrors, run.Success, run.ErrorMessage, run.ID)
	return err
}

// IngestHealthSummary aggregates unit outcomes per day and variable.
type IngestHealthSummary struct {
	Date        string `json:"date"`
	Variable    string `json:"variable"`
	TotalRuns   int    `json:"total_runs"`
	SuccessRuns int    `json:"success_runs"`
	FailedRuns  int    `json:"failed_runs"`
	RowsStored  int64  `json:"rows_stored"`
	ParseErrors int64  `json:"parse_errors"`
}

// GetIngestHealth returns ingest health summaries for the last N days.
func (s *Store) GetIngestHealth(ctx context.Context, days int) ([]IngestHealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			variable,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(rows_stored), 0) as rows_stored,
			COALESCE(SUM(parse_errors), 0) as parse_errors
		FROM ingest_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, variable
		ORDER BY date DESC, variable
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestHealthSummary
	for rows.Next() {
		var h IngestHealthSummary
		if err := rows.Scan(&h.Date, &h.Variable, &h.TotalRuns, &h.SuccessRuns,
			&h.FailedRuns, &h.RowsStored, &h.ParseErrors); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// ListIngestRuns returns the most recent ingest runs, newest first. When
// failedOnly is set only unsuccessful runs are returned.
func (s *Store) ListIngestRuns(ctx context.Context, limit int, failedOnly bool) ([]IngestRun, error) {
	query := `
		SELECT id, run_id, started_at, finished_at, unit_date, period, variable, country, centers,
		       http_status, response_size_bytes, rows_parsed, rows_kept, rows_stored, parse_errors,
		       success, error_message
		FROM ingest_runs`
	if failedOnly {
		query += ` WHERE success = FALSE`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &r.UnitDate, &r.Period,
			&r.Variable, &r.Country, &r.Centers, &r.HTTPStatus, &r.ResponseSizeBytes,
			&r.RowsParsed, &r.RowsKept, &r.RowsStored, &r.ParseErrors,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
