package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/footfall/internal/api"
	"github.com/talgya/footfall/internal/config"
	"github.com/talgya/footfall/internal/engine"
	"github.com/talgya/footfall/internal/persistence"
	"github.com/talgya/footfall/internal/report"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and write occupancy results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulation(ctx, cfg)
		},
	}
}

func runSimulation(ctx context.Context, cfg *config.Config) error {
	began := time.Now()

	w, err := buildWorld(cfg)
	if err != nil {
		return err
	}
	run := persistence.NewRun(cfg.Simulation.Start, cfg.Simulation.Ticks, cfg.Simulation.Seed, runParams(cfg))
	slog.Info("world ready",
		"run", run.ID,
		"pois", w.reg.Len(),
		"people", humanize.Comma(int64(w.people.Len())),
		"start", cfg.Simulation.Start.Format(time.RFC3339),
		"ticks", cfg.Simulation.Ticks,
		"seed", cfg.Simulation.Seed,
	)

	sinks, series, err := openSinks(ctx, cfg, w, run)
	if err != nil {
		return err
	}
	latest := &report.Latest{}
	sinks = append(sinks, latest)

	if cfg.API.Port > 0 {
		srv := &api.Server{
			Latest:     latest,
			Series:     series,
			RunID:      run.ID,
			SimStart:   cfg.Simulation.Start,
			Ticks:      cfg.Simulation.Ticks,
			Population: w.people.Len(),
			Port:       cfg.API.Port,
		}
		srv.Start(ctx)
	}

	eng := engine.NewEngine(cfg.Simulation.Start, cfg.Simulation.Ticks)
	eng.Pace = cfg.Simulation.Pace
	eng.OnHour = func(tick int, t time.Time) error {
		snap, err := w.sim.TickHour(tick, t)
		if err != nil {
			return err
		}
		return sinks.Record(ctx, snap)
	}
	eng.OnDay = w.sim.DailyReport
	eng.OnWeek = func(tick int, t time.Time) error {
		snap, ok := latest.Get()
		if !ok || len(snap.Rows) == 0 {
			return nil
		}
		busiest := snap.Rows[0]
		for _, r := range snap.Rows[1:] {
			if r.Occupancy > busiest.Occupancy {
				busiest = r
			}
		}
		slog.Info("week complete",
			"tick", tick,
			"sim_time", engine.SimTime(cfg.Simulation.Start, tick),
			"busiest", busiest.Name,
			"busiest_occupancy", busiest.Occupancy,
			"total_admitted", humanize.Comma(int64(w.sim.Stats.TotalAdmitted)),
		)
		return nil
	}

	runErr := eng.Run(ctx)
	if runErr != nil {
		sinks.Fail()
	}
	closeErr := sinks.Close()

	slog.Info("simulation finished",
		"run", run.ID,
		"ticks", eng.Tick,
		"person_hours", humanize.Comma(int64(eng.Tick)*int64(w.people.Len())),
		"output", cfg.Output.Dir,
		"execution_time", fmt.Sprintf("%.2fs", time.Since(began).Seconds()),
	)
	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}

	if cfg.API.Port > 0 {
		slog.Info("run complete; API still serving (Ctrl+C to exit)", "port", cfg.API.Port)
		<-ctx.Done()
	}
	return nil
}

// openSinks builds the output fan-out. On a setup error the sinks opened so
// far are failed and closed.
func openSinks(ctx context.Context, cfg *config.Config, w *world, run *persistence.Run) (report.Multi, api.SeriesLoader, error) {
	var (
		sinks  report.Multi
		series api.SeriesLoader
	)
	fail := func(err error) (report.Multi, api.SeriesLoader, error) {
		sinks.Fail()
		if cerr := sinks.Close(); cerr != nil {
			slog.Warn("closing sinks after setup failure", "error", cerr)
		}
		return nil, nil, err
	}

	csvSink, err := report.NewCSVSink(cfg.Output.Dir)
	if err != nil {
		return fail(err)
	}
	sinks = append(sinks, csvSink)

	if id, ok := w.trackedPerson(cfg.Output.TrackPerson); ok {
		sinks = append(sinks, report.NewPathTracker(w.people, w.catalog, id))
	} else {
		slog.Warn("tracked person not found", "id", cfg.Output.TrackPerson)
	}

	if cfg.Output.SQLite != "" {
		db, err := persistence.Open(cfg.Output.SQLite)
		if err != nil {
			return fail(err)
		}
		if err := db.CreateRun(ctx, run, w.catalog); err != nil {
			db.Close()
			return fail(fmt.Errorf("record run: %w", err))
		}
		s := persistence.NewSink(db, run.ID)
		sinks = append(sinks, s)
		series = db
		slog.Info("database opened", "path", cfg.Output.SQLite)
	}

	if cfg.Output.PostgresDSN != "" {
		pg, err := persistence.OpenPostgres(ctx, cfg.Output.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		if err := pg.CreateRun(ctx, run, w.catalog); err != nil {
			pg.Close()
			return fail(fmt.Errorf("record run: %w", err))
		}
		s := persistence.NewSink(pg, run.ID)
		sinks = append(sinks, s)
		if series == nil {
			series = pg
		}
		slog.Info("postgres connected")
	}

	return sinks, series, nil
}
