package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/wdqms/internal/config"
	"github.com/lox/wdqms/internal/httputil"
	"github.com/lox/wdqms/internal/ingest"
	"github.com/lox/wdqms/internal/kafka"
	"github.com/lox/wdqms/internal/store"
)

type CLI struct {
	config.Config `embed:""`

	Migrate       MigrateCmd       `cmd:"" help:"Apply database migrations."`
	Ingest        IngestCmd        `cmd:"" help:"Download availability snapshots and reconcile them into the store."`
	Serve         ServeCmd         `cmd:"" help:"Serve the aggregate API and run scheduled ingests."`
	Stations      StationsCmd      `cmd:"" help:"List known stations."`
	Countries     CountriesCmd     `cmd:"" help:"Manage the country catalog used by ingest."`
	Runs          RunsCmd          `cmd:"" help:"Show recent ingest units."`
	Payload       PayloadCmd       `cmd:"" help:"Write an archived snapshot to stdout."`
	PrunePayloads PrunePayloadsCmd `cmd:"" help:"Delete archived snapshots older than a retention window."`
}

// App carries what every subcommand needs once flags are parsed.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("wdqms"),
		kong.Description("WDQMS SYNOP transmission-rate ingest and aggregation service."),
		kong.UsageOnError(),
		kong.Vars(config.Vars()),
	)

	logger, err := config.NewLogger(cli.LogLevel, cli.LogFormat)
	kctx.FatalIfErrorf(err)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &App{ctx: ctx, cfg: &cli.Config, logger: logger}
	kctx.FatalIfErrorf(kctx.Run(app))
}

// openStore opens and migrates the configured database. The returned close
// function must be called when done.
func (a *App) openStore() (*store.Store, func(), error) {
	if dir := filepath.Dir(a.cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := store.Open(a.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

// newRunner wires the fetcher, watermarks and report sink. The returned close
// function releases the sink.
func (a *App) newRunner(st *store.Store, workers int) (*ingest.Runner, func(), error) {
	epoch, err := a.cfg.EpochDate()
	if err != nil {
		return nil, nil, err
	}

	fetcher := ingest.NewFetcher(a.cfg.BaseURL, httputil.NewClient(a.cfg.FetchTimeout))
	watermarks := ingest.NewWatermarkResolver(st, clockwork.NewRealClock(), epoch)
	runner := ingest.NewRunner(st, fetcher, watermarks, a.logger)
	runner.SetWorkers(workers)

	closeSink := func() {}
	if len(a.cfg.KafkaBrokers) > 0 {
		w := kafka.NewReportWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.logger)
		runner.SetReportSink(w)
		closeSink = func() {
			if err := w.Close(); err != nil {
				a.logger.Error("kafka writer close", "error", err)
			}
		}
		a.logger.Info("publishing unit reports", "brokers", a.cfg.KafkaBrokers, "topic", a.cfg.KafkaTopic)
	}
	return runner, closeSink, nil
}
