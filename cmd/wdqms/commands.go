package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/lox/wdqms/internal/api"
	"github.com/lox/wdqms/internal/ingest"
	"github.com/lox/wdqms/internal/models"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	version, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	stations, err := st.CountStations(app.ctx)
	if err != nil {
		return err
	}
	transmissions, err := st.CountTransmissions(app.ctx)
	if err != nil {
		return err
	}
	app.logger.Info("database migrated", "path", app.cfg.DB, "version", version,
		"stations", stations, "transmissions", transmissions)
	return nil
}

type IngestCmd struct {
	Start     string   `help:"First date to fetch (YYYY-MM-DD). Defaults to the latest stored date per variable."`
	End       string   `help:"Last date to fetch (YYYY-MM-DD). Defaults to yesterday (UTC)."`
	Variables []string `name:"variable" help:"Variable to fetch; repeatable. Defaults to all."`
	Periods   []string `name:"period" help:"Synoptic period (00, 06, 12, 18); repeatable. Defaults to all."`
	Centers   []string `name:"center" help:"NWP monitoring center; repeatable. Defaults to all."`
	Countries []string `name:"country" help:"ISO3 country code; repeatable. Defaults to the country catalog."`
	Workers   int      `default:"4" help:"Units fetched concurrently."`
	NoArchive bool     `help:"Do not keep compressed copies of downloaded snapshots."`
}

func (c *IngestCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	runner, closeSink, err := app.newRunner(st, c.Workers)
	if err != nil {
		return err
	}
	defer closeSink()
	runner.SetArchive(!c.NoArchive)

	summary, err := runner.Run(app.ctx, ingest.Request{
		Start:     c.Start,
		End:       c.End,
		Variables: c.Variables,
		Periods:   c.Periods,
		Centers:   c.Centers,
		Countries: c.Countries,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d units, %d succeeded, %d failed\n", summary.RunID, summary.Units, summary.Succeeded, summary.Failed)
	fmt.Printf("transmissions: %d created, %d updated, %d unchanged; %d new stations\n",
		summary.Created, summary.Updated, summary.Unchanged, summary.StationsCreated)
	for _, f := range summary.Failures {
		fmt.Printf("  failed %s: %s\n", f.Key(), f.Error)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", summary.Failed, summary.Units)
	}
	return nil
}

type ServeCmd struct {
	Addr       string   `default:":8080" env:"WDQMS_ADDR" help:"HTTP listen address."`
	Schedule   string   `default:"0 3 * * *" env:"WDQMS_SCHEDULE" help:"Cron expression (UTC) for incremental ingests."`
	NoSchedule bool     `help:"Serve the API without scheduled ingests."`
	RunNow     bool     `help:"Run one incremental ingest at startup."`
	Workers    int      `default:"4" help:"Units fetched concurrently by scheduled ingests."`
	Countries  []string `name:"country" help:"Restrict scheduled ingests to these countries. Defaults to the catalog."`
}

func (c *ServeCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(app.ctx)

	if !c.NoSchedule {
		runner, closeSink, err := app.newRunner(st, c.Workers)
		if err != nil {
			return err
		}
		defer closeSink()

		scheduler, err := ingest.NewScheduler(runner, c.Schedule, ingest.Request{Countries: c.Countries}, app.logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Run(ctx) })
		if c.RunNow {
			g.Go(func() error {
				if _, err := scheduler.Trigger(ctx); err != nil && ctx.Err() == nil {
					app.logger.Error("startup ingest failed", "error", err)
				}
				return nil
			})
		}
	} else {
		app.logger.Info("scheduled ingests disabled")
	}

	server := api.New(st, c.Addr, app.logger)
	g.Go(func() error { return server.Run(ctx) })

	return g.Wait()
}

type StationsCmd struct {
	WigosID string `help:"Show a single station."`
}

func (c *StationsCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	var stations []models.Station
	if c.WigosID != "" {
		station, err := st.GetStation(app.ctx, c.WigosID)
		if err != nil {
			return err
		}
		if station == nil {
			return fmt.Errorf("station %s not found", c.WigosID)
		}
		stations = append(stations, *station)
	} else if stations, err = st.ListStations(app.ctx, ""); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WIGOS ID\tNAME\tLON\tLAT\tOSCAR")
	for _, s := range stations {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%t\n", s.WigosID, s.Name, s.Longitude, s.Latitude, s.InOSCAR)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%s stations\n", humanize.Comma(int64(len(stations))))
	return nil
}

type CountriesCmd struct {
	Add    CountriesAddCmd    `cmd:"" help:"Add a country to the catalog, or rename it."`
	List   CountriesListCmd   `cmd:"" default:"1" help:"List the catalog."`
	Remove CountriesRemoveCmd `cmd:"" help:"Remove a country from the catalog."`
}

type CountriesAddCmd struct {
	Code string `arg:"" help:"ISO 3166 alpha-3 code, e.g. KEN."`
	Name string `arg:"" optional:"" help:"Display name."`
}

func (c *CountriesAddCmd) Run(app *App) error {
	code := strings.TrimSpace(c.Code)
	if len(code) != 3 {
		return fmt.Errorf("country code %q must have three letters", c.Code)
	}

	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.AddCountry(app.ctx, models.Country{Code: code, Name: c.Name}); err != nil {
		return err
	}
	fmt.Printf("added %s\n", strings.ToUpper(code))
	return nil
}

type CountriesListCmd struct{}

func (c *CountriesListCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	countries, err := st.ListCountries(app.ctx)
	if err != nil {
		return err
	}
	if len(countries) == 0 {
		fmt.Println("no countries configured")
		return nil
	}
	for _, c := range countries {
		fmt.Printf("%s\t%s\n", c.Code, c.Name)
	}
	return nil
}

type CountriesRemoveCmd struct {
	Code string `arg:"" help:"ISO 3166 alpha-3 code."`
}

func (c *CountriesRemoveCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	removed, err := st.RemoveCountry(app.ctx, c.Code)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("country %s is not in the catalog", strings.ToUpper(c.Code))
	}
	fmt.Printf("removed %s\n", strings.ToUpper(c.Code))
	return nil
}

type RunsCmd struct {
	Limit  int  `default:"20" help:"Number of units to show."`
	Failed bool `help:"Only show failed units."`
}

func (c *RunsCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := st.ListIngestRuns(app.ctx, c.Limit, c.Failed)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tUNIT\tSTATUS\tSIZE\tROWS\tSTORED\tRESULT")
	for _, r := range runs {
		status, size, rows, stored := "-", "-", "-", "-"
		if r.HTTPStatus.Valid {
			status = fmt.Sprint(r.HTTPStatus.Int64)
		}
		if r.ResponseSizeBytes.Valid {
			size = humanize.Bytes(uint64(r.ResponseSizeBytes.Int64))
		}
		if r.RowsParsed.Valid {
			rows = fmt.Sprint(r.RowsParsed.Int64)
		}
		if r.RowsStored.Valid {
			stored = fmt.Sprint(r.RowsStored.Int64)
		}
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.ErrorMessage.Valid {
				result += ": " + r.ErrorMessage.String
			}
		}
		unit := fmt.Sprintf("%s/%s/%s/%s", r.UnitDate, r.Period, r.Variable, r.Country)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.StartedAt), unit, status, size, rows, stored, result)
	}
	return w.Flush()
}

type PayloadCmd struct {
	ID int64 `arg:"" help:"Archived snapshot ID, as logged by ingest."`
}

func (c *PayloadCmd) Run(app *App) error {
	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	data, err := st.GetRawPayload(app.ctx, c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no archived snapshot with id %d", c.ID)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

type PrunePayloadsCmd struct {
	Days int `default:"30" help:"Keep archived snapshots fetched within this many days."`
}

func (c *PrunePayloadsCmd) Run(app *App) error {
	if c.Days < 0 {
		return fmt.Errorf("days must not be negative")
	}

	st, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := st.CleanupOldRawPayloads(app.ctx, c.Days)
	if err != nil {
		return err
	}
	app.logger.Info("pruned archived snapshots", "deleted", n, "retention_days", c.Days)
	return nil
}
