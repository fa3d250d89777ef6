package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/wdqms/internal/models"
)

// DefaultEpoch is the first day WDQMS availability data is fetched from when
// nothing has been ingested yet.
var DefaultEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// WatermarkStore reports the latest persisted transmission for a variable.
type WatermarkStore interface {
	LatestReceivedAt(ctx context.Context, variable models.Variable) (time.Time, bool, error)
}

type WatermarkResolver struct {
	store WatermarkStore
	clock clockwork.Clock
	epoch time.Time
}

func NewWatermarkResolver(store WatermarkStore, clock clockwork.Clock, epoch time.Time) *WatermarkResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	return &WatermarkResolver{store: store, clock: clock, epoch: epoch}
}

// Resolve picks the date range to ingest for variable. An explicit start wins;
// otherwise ingestion resumes on the date of the latest stored transmission
// (that date is fetched again to pick up late corrections); otherwise it
// starts at the epoch. The end defaults to yesterday (UTC).
func (w *WatermarkResolver) Resolve(ctx context.Context, variable models.Variable, start, end string) (DateRange, error) {
	var (
		from, to time.Time
		err      error
	)

	if end != "" {
		if to, err = ParseDate("end date", end); err != nil {
			return DateRange{}, err
		}
	} else {
		to = truncateDay(w.clock.Now()).AddDate(0, 0, -1)
	}

	if start != "" {
		if from, err = ParseDate("start date", start); err != nil {
			return DateRange{}, err
		}
	} else {
		latest, ok, err := w.store.LatestReceivedAt(ctx, variable)
		if err != nil {
			return DateRange{}, fmt.Errorf("latest %s transmission: %w", variable, err)
		}
		if ok {
			from = truncateDay(latest)
		} else {
			from = w.epoch
		}
	}

	return NewDateRange(from, to)
}
