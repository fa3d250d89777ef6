package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the incremental ingest once a day, after WDQMS has
// published the previous day's availability.
const DefaultSchedule = "0 3 * * *"

// Scheduler triggers watermark-driven ingests on a cron expression. A trigger
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	runner   *Runner
	request  Request
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(runner *Runner, schedule string, request Request, logger *slog.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	if _, err := request.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, request: request, schedule: schedule, logger: logger}, nil
}

// Run blocks until ctx is done, waiting for an in-flight ingest to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Error("scheduled ingest failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}

	s.logger.Info("scheduler: started", "schedule", s.schedule)
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler: shutting down")
	<-c.Stop().Done()
	return nil
}

// ErrRunInProgress is returned by Trigger when an ingest is already running.
var ErrRunInProgress = errors.New("ingest already in progress")

// Trigger runs one ingest now unless another is in progress.
func (s *Scheduler) Trigger(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler: skipping trigger, previous ingest still running")
		return nil, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx, s.request)
}
