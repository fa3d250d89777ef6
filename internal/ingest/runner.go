package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lox/wdqms/internal/metrics"
	"github.com/lox/wdqms/internal/models"
	"github.com/lox/wdqms/internal/store"
)

const DefaultWorkers = 4

// ErrNoCountries is returned when neither the request nor the catalog names a country.
var ErrNoCountries = errors.New("no countries configured: add one with `wdqms countries add` or pass --country")

type Runner struct {
	store      *store.Store
	fetcher    *Fetcher
	reconciler *Reconciler
	watermarks *WatermarkResolver
	sink       ReportSink
	logger     *slog.Logger
	workers    int
	archive    bool
}

func NewRunner(st *store.Store, fetcher *Fetcher, watermarks *WatermarkResolver, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:      st,
		fetcher:    fetcher,
		reconciler: NewReconciler(st),
		watermarks: watermarks,
		sink:       NopSink{},
		logger:     logger,
		workers:    DefaultWorkers,
		archive:    true,
	}
}

// SetWorkers bounds how many units are fetched concurrently.
func (r *Runner) SetWorkers(n int) {
	if n > 0 {
		r.workers = n
	}
}

// SetReportSink configures where unit reports are published.
func (r *Runner) SetReportSink(sink ReportSink) {
	if sink == nil {
		sink = NopSink{}
	}
	r.sink = sink
}

// SetArchive toggles keeping a compressed copy of every downloaded snapshot.
func (r *Runner) SetArchive(enabled bool) {
	r.archive = enabled
}

// Units expands a validated plan into fetch units, resolving each variable's
// date range from its watermark. No network activity happens here.
func (r *Runner) Units(ctx context.Context, plan Plan) ([]Unit, error) {
	countries := plan.Countries
	if len(countries) == 0 {
		catalog, err := r.store.ListCountries(ctx)
		if err != nil {
			return nil, fmt.Errorf("list countries: %w", err)
		}
		for _, c := range catalog {
			countries = append(countries, c.Code)
		}
	}
	if len(countries) == 0 {
		return nil, ErrNoCountries
	}

	ranges := make(map[models.Variable]DateRange, len(plan.Variables))
	for _, v := range plan.Variables {
		rng, err := r.watermarks.Resolve(ctx, v, plan.Start, plan.End)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", v, err)
		}
		ranges[v] = rng
	}

	var units []Unit
	for _, country := range countries {
		for _, v := range plan.Variables {
			for d := range ranges[v].Days() {
				for _, p := range plan.Periods {
					units = append(units, Unit{
						Date:     d,
						Period:   p,
						Variable: v,
						Centers:  plan.Centers,
						Country:  country,
					})
				}
			}
		}
	}
	return units, nil
}

// Run validates req, plans the units and processes them on a bounded worker
// pool. A failing unit is recorded in its audit row but never stops its
// siblings; only validation and planning errors are returned.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	plan, err := req.Validate()
	if err != nil {
		return nil, err
	}

	units, err := r.Units(ctx, plan)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", summary.RunID)
	logger.Info("ingest starting", "units", len(units), "workers", r.workers,
		"variables", len(plan.Variables), "periods", len(plan.Periods))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report := r.runUnit(gctx, summary.RunID, u, logger)
			if err := r.sink.Publish(context.WithoutCancel(gctx), report); err != nil {
				logger.Warn("publish unit report", "unit", u.Key(), "error", err)
			}
			mu.Lock()
			summary.add(report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("ingest finished", "units", summary.Units, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "created", summary.Created, "updated", summary.Updated,
		"unchanged", summary.Unchanged, "stations_created", summary.StationsCreated)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) runUnit(ctx context.Context, runID string, u Unit, logger *slog.Logger) (report UnitReport) {
	report = UnitReport{
		RunID:     runID,
		Date:      u.Date.Format(dateLayout),
		Period:    string(u.Period),
		Variable:  string(u.Variable),
		Country:   u.Country,
		Centers:   models.JoinCenters(u.Centers),
		StartedAt: time.Now().UTC(),
	}
	logger = logger.With("unit", u.Key())

	run := &store.IngestRun{
		RunID:    runID,
		UnitDate: report.Date,
		Period:   report.Period,
		Variable: report.Variable,
		Country:  report.Country,
		Centers:  report.Centers,
	}
	if err := r.store.StartIngestRun(ctx, run); err != nil {
		logger.Warn("start ingest run", "error", err)
		run = nil
	}

	defer func() {
		report.FinishedAt = time.Now().UTC()
		outcome := "success"
		if !report.Success {
			outcome = "failed"
		}
		metrics.UnitsTotal.WithLabelValues(outcome).Inc()

		if run == nil {
			return
		}
		fillIngestRun(run, report)
		if err := r.store.CompleteIngestRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("complete ingest run", "error", err)
		}
	}()

	snap, err := r.fetcher.Fetch(ctx, u)
	if err != nil {
		var fetchErr *models.FetchError
		if errors.As(err, &fetchErr) {
			report.HTTPStatus = fetchErr.Status
		}
		report.Error = err.Error()
		logger.Error("fetch failed", "status", report.HTTPStatus, "error", err)
		return report
	}
	defer snap.Close()

	report.HTTPStatus = snap.Status
	report.SizeBytes = snap.Size

	if r.archive {
		r.archiveSnapshot(ctx, run, u, snap, logger)
	}

	parsed, err := snap.Rows()
	if err != nil {
		report.Error = err.Error()
		logger.Error("parse snapshot", "error", err)
		return report
	}
	report.RowsParsed = len(parsed.Rows)
	report.ParseErrors = parsed.ParseErrors
	if parsed.ParseErrors > 0 {
		logger.Warn("skipped malformed rows", "count", parsed.ParseErrors, "first", parsed.FirstError)
	}

	rows := Normalize(parsed.Rows, u.Country)
	report.RowsKept = len(rows)

	res, err := r.reconciler.Reconcile(ctx, NewBatch(rows))
	report.StationsCreated = res.StationsCreated
	report.Created = res.Created
	report.Updated = res.Updated
	report.Unchanged = res.Unchanged
	if err != nil {
		report.Error = err.Error()
		logger.Error("reconcile", "stored", res.Stored(), "error", err)
		return report
	}

	report.Success = true
	logger.Info("unit ingested",
		"size", humanize.Bytes(uint64(snap.Size)),
		"rows", report.RowsParsed,
		"kept", report.RowsKept,
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", res.Unchanged)
	return report
}

func (r *Runner) archiveSnapshot(ctx context.Context, run *store.IngestRun, u Unit, snap *Snapshot, logger *slog.Logger) {
	payload, err := snap.Bytes()
	if err != nil {
		logger.Warn("read snapshot for archive", "error", err)
		return
	}
	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	id, err := r.store.StoreRawPayload(ctx, runID, u.Key(), payload)
	if err != nil {
		logger.Warn("archive snapshot", "error", err)
		return
	}
	if id > 0 {
		logger.Debug("snapshot archived", "payload_id", id, "size", humanize.Bytes(uint64(len(payload))))
	}
}

func fillIngestRun(run *store.IngestRun, report UnitReport) {
	run.Success = report.Success
	if report.HTTPStatus > 0 {
		run.HTTPStatus = sql.NullInt64{Int64: int64(report.HTTPStatus), Valid: true}
	}
	if report.SizeBytes > 0 {
		run.ResponseSizeBytes = sql.NullInt64{Int64: report.SizeBytes, Valid: true}
	}
	if report.HTTPStatus == 200 {
		run.RowsParsed = sql.NullInt64{Int64: int64(report.RowsParsed), Valid: true}
		run.RowsKept = sql.NullInt64{Int64: int64(report.RowsKept), Valid: true}
		run.RowsStored = sql.NullInt64{Int64: int64(report.Created + report.Updated + report.Unchanged), Valid: true}
		run.ParseErrors = sql.NullInt64{Int64: int64(report.ParseErrors), Valid: true}
	}
	if report.Error != "" {
		run.ErrorMessage = sql.NullString{String: report.Error, Valid: true}
	}
}
