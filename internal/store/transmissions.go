package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/wdqms/internal/models"
)

// receivedAtLayout is how received_at is stored. It sorts lexically and is
// understood by SQLite's date functions.
const receivedAtLayout = "2006-01-02 15:04:05"

func formatReceivedAt(t time.Time) string {
	return t.UTC().Format(receivedAtLayout)
}

func parseReceivedAt(s string) (time.Time, error) {
	return time.ParseInLocation(receivedAtLayout, s, time.UTC)
}

// RowOutcome describes what reconciling a single row did to the store.
type RowOutcome struct {
	StationCreated bool
	Transmission   TransmissionOutcome
}

type TransmissionOutcome int

const (
	TransmissionCreated TransmissionOutcome = iota + 1
	TransmissionUpdated
	TransmissionUnchanged
)

func (o TransmissionOutcome) String() string {
	switch o {
	case TransmissionCreated:
		return "created"
	case TransmissionUpdated:
		return "updated"
	case TransmissionUnchanged:
		return "unchanged"
	}
	return "unknown"
}

// ReconcileRow applies one normalized row in a single transaction. When
// station is non-nil it is inserted if absent; an existing station is never
// modified. The transmission is then upserted on (wigos_id, variable,
// received_at). If the referenced station does not exist at that point a
// *models.DanglingReferenceError is returned and nothing is written.
func (s *Store) ReconcileRow(ctx context.Context, station *models.Station, t models.Transmission) (RowOutcome, error) {
	var out RowOutcome

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()

	if station != nil {
		if station.WigosID != t.WigosID {
			return out, fmt.Errorf("station %s does not match transmission station %s", station.WigosID, t.WigosID)
		}
		res, err := tx.ExecContext(ctx, insertStationSQL,
			station.WigosID, station.Name, station.Longitude, station.Latitude, station.InOSCAR)
		if err != nil {
			return out, fmt.Errorf("insert station %s: %w", station.WigosID, err)
		}
		n, _ := res.RowsAffected()
		out.StationCreated = n > 0
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM stations WHERE wigos_id = ?)`, t.WigosID,
	).Scan(&exists); err != nil {
		return out, fmt.Errorf("check station %s: %w", t.WigosID, err)
	}
	if !exists {
		return RowOutcome{}, &models.DanglingReferenceError{WigosID: t.WigosID}
	}

	receivedAt := formatReceivedAt(t.ReceivedAt)

	var (
		prevReceived, prevExpected sql.NullInt64
		prevRate                   float64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT received, expected, received_rate FROM transmissions
		WHERE wigos_id = ? AND variable = ? AND received_at = ?
	`, t.WigosID, string(t.Variable), receivedAt).Scan(&prevReceived, &prevExpected, &prevRate)
	switch {
	case err == sql.ErrNoRows:
		out.Transmission = TransmissionCreated
	case err != nil:
		return out, fmt.Errorf("lookup transmission: %w", err)
	case prevReceived == t.Received && prevExpected == t.Expected && prevRate == t.ReceivedRate:
		out.Transmission = TransmissionUnchanged
	default:
		out.Transmission = TransmissionUpdated
	}

	if out.Transmission != TransmissionUnchanged {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transmissions (wigos_id, variable, received, expected, received_rate, received_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(wigos_id, variable, received_at) DO UPDATE SET
				received = excluded.received,
				expected = excluded.expected,
				received_rate = excluded.received_rate
		`, t.WigosID, string(t.Variable), t.Received, t.Expected, t.ReceivedRate, receivedAt); err != nil {
			return out, fmt.Errorf("upsert transmission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("commit reconcile tx: %w", err)
	}
	return out, nil
}

func (s *Store) CountTransmissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transmissions`).Scan(&n)
	return n, err
}

// LatestReceivedAt returns the most recent received timestamp, restricted to
// variable when it is non-empty. ok is false when nothing has been stored.
func (s *Store) LatestReceivedAt(ctx context.Context, variable models.Variable) (latest time.Time, ok bool, err error) {
	query := `SELECT MAX(received_at) FROM transmissions`
	var args []any
	if variable != "" {
		query += ` WHERE variable = ?`
		args = append(args, string(variable))
	}

	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	latest, err = parseReceivedAt(ts.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse received_at %q: %w", ts.String, err)
	}
	return latest, true, nil
}

// TransmissionFilter narrows the rows read by ListTransmissionPoints. Zero
// values mean "no restriction".
type TransmissionFilter struct {
	WigosID  string
	Variable models.Variable
	Date     time.Time // calendar date, UTC
	Month    int       // 1-12, matched in any year unless Year is also set
	Year     int
}

// ListTransmissionPoints returns transmissions joined with their station,
// ordered by received_at then wigos_id.
func (s *Store) ListTransmissionPoints(ctx context.Context, f TransmissionFilter) ([]models.TransmissionPoint, error) {
	var (
		where []string
		args  []any
	)
	if f.WigosID != "" {
		where = append(where, "t.wigos_id = ?")
		args = append(args, f.WigosID)
	}
	if f.Variable != "" {
		where = append(where, "t.variable = ?")
		args = append(args, string(f.Variable))
	}
	if !f.Date.IsZero() {
		where = append(where, "substr(t.received_at, 1, 10) = ?")
		args = append(args, f.Date.UTC().Format("2006-01-02"))
	}
	if f.Month != 0 {
		where = append(where, "substr(t.received_at, 6, 2) = ?")
		args = append(args, fmt.Sprintf("%02d", f.Month))
	}
	if f.Year != 0 {
		where = append(where, "substr(t.received_at, 1, 4) = ?")
		args = append(args, fmt.Sprintf("%04d", f.Year))
	}

	query := `
		SELECT t.wigos_id, s.name, s.longitude, s.latitude, t.variable,
		       t.received, t.expected, t.received_rate, t.received_at
		FROM transmissions t
		JOIN stations s ON s.wigos_id = t.wigos_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.received_at, t.wigos_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.TransmissionPoint
	for rows.Next() {
		var (
			p  models.TransmissionPoint
			ts string
		)
		if err := rows.Scan(&p.WigosID, &p.StationName, &p.Longitude, &p.Latitude, &p.Variable,
			&p.Received, &p.Expected, &p.ReceivedRate, &ts); err != nil {
			return nil, err
		}
		if p.ReceivedAt, err = parseReceivedAt(ts); err != nil {
			return nil, fmt.Errorf("parse received_at %q: %w", ts, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
