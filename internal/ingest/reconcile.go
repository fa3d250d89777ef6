package ingest

import (
	"context"
	"fmt"

	"github.com/lox/wdqms/internal/metrics"
	"github.com/lox/wdqms/internal/models"
	"github.com/lox/wdqms/internal/store"
)

// RowReconciler applies one row atomically. *store.Store implements it.
type RowReconciler interface {
	ReconcileRow(ctx context.Context, station *models.Station, t models.Transmission) (store.RowOutcome, error)
}

// Batch is the reconciliation input for one unit.
type Batch struct {
	Stations map[string]models.Station
	Rows     []models.NormalizedRow
}

// NewBatch derives the station set from the rows themselves.
func NewBatch(rows []models.NormalizedRow) Batch {
	stations := make(map[string]models.Station, len(rows))
	for _, r := range rows {
		if _, ok := stations[r.WigosID]; !ok {
			stations[r.WigosID] = r.Station()
		}
	}
	return Batch{Stations: stations, Rows: rows}
}

type ReconcileResult struct {
	StationsCreated int
	Created         int
	Updated         int
	Unchanged       int
}

// Stored is the number of rows that are now persisted, touched or not.
func (r ReconcileResult) Stored() int {
	return r.Created + r.Updated + r.Unchanged
}

type Reconciler struct {
	store RowReconciler
}

func NewReconciler(store RowReconciler) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile writes the batch row by row. Each row's station and transmission
// commit together; rows are independent of each other. The first failure
// stops the batch and is returned alongside the counts for rows already
// committed.
func (r *Reconciler) Reconcile(ctx context.Context, b Batch) (ReconcileResult, error) {
	var res ReconcileResult
	for _, row := range b.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var station *models.Station
		if st, ok := b.Stations[row.WigosID]; ok {
			station = &st
		}

		t := row.Transmission()
		out, err := r.store.ReconcileRow(ctx, station, t)
		if err != nil {
			return res, fmt.Errorf("reconcile %s: %w", row.WigosID, err)
		}

		if out.StationCreated {
			res.StationsCreated++
			metrics.StationsCreated.Inc()
		}
		switch out.Transmission {
		case store.TransmissionCreated:
			res.Created++
		case store.TransmissionUpdated:
			res.Updated++
		case store.TransmissionUnchanged:
			res.Unchanged++
		}
		metrics.TransmissionsReconciled.WithLabelValues(string(t.Variable), out.Transmission.String()).Inc()
	}
	return res, nil
}
