package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/lox/wdqms/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path with WAL, a busy timeout and
// foreign keys enabled on every pooled connection. Transactions begin
// IMMEDIATE so a writer queues on the busy timeout at BEGIN instead of
// failing when its read snapshot goes stale.
func Open(path string) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const insertStationSQL = `
	INSERT INTO stations (wigos_id, name, longitude, latitude, in_oscar)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(wigos_id) DO NOTHING
`

func (s *Store) GetStation(ctx context.Context, wigosID string) (*models.Station, error) {
	var st models.Station
	err := s.db.QueryRowContext(ctx, `
		SELECT wigos_id, name, longitude, latitude, in_oscar
		FROM stations WHERE wigos_id = ?
	`, wigosID).Scan(&st.WigosID, &st.Name, &st.Longitude, &st.Latitude, &st.InOSCAR)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStations returns all stations ordered by WIGOS id, or only the matching
// station when wigosID is non-empty.
func (s *Store) ListStations(ctx context.Context, wigosID string) ([]models.Station, error) {
	query := `SELECT wigos_id, name, longitude, latitude, in_oscar FROM stations`
	var args []any
	if wigosID != "" {
		query += ` WHERE wigos_id = ?`
		args = append(args, wigosID)
	}
	query += ` ORDER BY wigos_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.WigosID, &st.Name, &st.Longitude, &st.Latitude, &st.InOSCAR); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (s *Store) CountStations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, err
}
