package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wdqms/internal/models"
)

func setupFileStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "wdqms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.Migrate())
	return store
}

func TestOpen_Pragmas(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, store.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk, timeout int
	require.NoError(t, store.db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	require.NoError(t, store.db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_ForeignKeyRejectsUnknownStation(t *testing.T) {
	store := setupFileStore(t)

	_, err := store.db.ExecContext(context.Background(), `
		INSERT INTO transmissions (wigos_id, variable, received_rate, received_at)
		VALUES ('missing', 'pressure', 50, '2024-05-01 06:00:00')
	`)
	require.ErrorContains(t, err, "FOREIGN KEY")
}

// reconcileConcurrently runs one ReconcileRow per rate on the same composite
// key and returns the outcomes.
func reconcileConcurrently(t *testing.T, store *Store, station *models.Station, rates []float64) []RowOutcome {
	t.Helper()
	var (
		wg       sync.WaitGroup
		outcomes = make([]RowOutcome, len(rates))
		errs     = make([]error, len(rates))
	)
	for i, rate := range rates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = store.ReconcileRow(context.Background(), station, testTransmission(rate))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return outcomes
}

func assertSingleTransmission(t *testing.T, store *Store, rates []float64) {
	t.Helper()
	n, err := store.CountTransmissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetTransmission(context.Background(), testStation.WigosID, models.VariablePressure, testTransmission(0).ReceivedAt)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, rates, got.ReceivedRate)
	// received and rate come from the same write
	assert.Equal(t, int64(got.ReceivedRate), got.Received.Int64)
}

func TestReconcileRow_ConcurrentSameKey(t *testing.T) {
	store := setupFileStore(t)
	st := testStation

	rates := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 15, 25, 35, 45, 55, 65, 75}
	outcomes := reconcileConcurrently(t, store, &st, rates)

	var stationsCreated, created int
	for _, out := range outcomes {
		if out.StationCreated {
			stationsCreated++
		}
		if out.Transmission == TransmissionCreated {
			created++
		}
	}
	assert.Equal(t, 1, stationsCreated)
	assert.Equal(t, 1, created)
	assertSingleTransmission(t, store, rates)
}

func TestReconcileRow_ConcurrentExistingStation(t *testing.T) {
	ctx := context.Background()
	store := setupFileStore(t)
	_, err := store.InsertStation(ctx, testStation)
	require.NoError(t, err)

	rates := []float64{11, 22, 33, 44, 55, 66, 77, 88}
	outcomes := reconcileConcurrently(t, store, nil, rates)

	var created int
	for _, out := range outcomes {
		assert.False(t, out.StationCreated)
		if out.Transmission == TransmissionCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assertSingleTransmission(t, store, rates)
}
