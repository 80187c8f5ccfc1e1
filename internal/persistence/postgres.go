package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talgya/footfall/internal/poi"
)

const dialectPostgres = "postgres"

// Postgres stores runs in a PostgreSQL database through a pgx pool.
// Snapshots are written with COPY.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	pg := &Postgres{pool: pool}
	if err := pg.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return pg, nil
}

// Close releases the pool.
func (pg *Postgres) Close() error {
	pg.pool.Close()
	return nil
}

func (pg *Postgres) migrate(ctx context.Context) error {
	_, err := pg.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		start TIMESTAMPTZ NOT NULL,
		ticks INTEGER NOT NULL,
		seed BIGINT NOT NULL,
		params_json JSONB NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pois (
		run_id TEXT NOT NULL REFERENCES runs(id),
		poi_id TEXT NOT NULL,
		location_name TEXT NOT NULL,
		PRIMARY KEY (run_id, poi_id)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		at TIMESTAMPTZ NOT NULL,
		poi_id TEXT NOT NULL,
		capacity DOUBLE PRECISION NOT NULL,
		occupancy INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick, poi_id)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_poi ON snapshots(run_id, poi_id);
	`)
	return err
}

// CreateRun inserts the run and its POI catalog.
func (pg *Postgres) CreateRun(ctx context.Context, run *Run, catalog []*poi.POI) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, start, ticks, seed, params_json, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Start.UTC(), run.Ticks, run.Seed, string(paramsJSON), run.Status,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"pois"},
		[]string{"run_id", "poi_id", "location_name"},
		pgx.CopyFromSlice(len(catalog), func(i int) ([]any, error) {
			return []any{run.ID, string(catalog[i].ID), catalog[i].Name}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy pois: %w", err)
	}

	return tx.Commit(ctx)
}

// SaveSnapshot copies one hour's rows into the snapshots table.
func (pg *Postgres) SaveSnapshot(ctx context.Context, runID string, snap poi.Snapshot) error {
	at := snap.Time.UTC()
	n, err := pg.pool.CopyFrom(ctx,
		pgx.Identifier{"snapshots"},
		[]string{"run_id", "tick", "at", "poi_id", "capacity", "occupancy"},
		pgx.CopyFromSlice(len(snap.Rows), func(i int) ([]any, error) {
			r := snap.Rows[i]
			return []any{runID, snap.Tick, at, string(r.ID), r.Capacity, r.Occupancy}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy snapshot tick %d: %w", snap.Tick, err)
	}
	if int(n) != len(snap.Rows) {
		return fmt.Errorf("copy snapshot tick %d: wrote %d of %d rows", snap.Tick, n, len(snap.Rows))
	}
	return nil
}

// FinishRun sets the final run status.
func (pg *Postgres) FinishRun(ctx context.Context, runID, status string) error {
	tag, err := pg.pool.Exec(ctx, "UPDATE runs SET status = $1 WHERE id = $2", status, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	slog.Info("run finished", "run", runID, "status", status, "store", "postgres")
	return nil
}

// GetRun loads a run by id.
func (pg *Postgres) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run        Run
		paramsJSON []byte
	)
	err := pg.pool.QueryRow(ctx,
		"SELECT id, start, ticks, seed, params_json, status FROM runs WHERE id = $1", runID,
	).Scan(&run.ID, &run.Start, &run.Ticks, &run.Seed, &paramsJSON, &run.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	run.Start = run.Start.UTC()
	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, fmt.Errorf("run %s params: %w", runID, err)
	}
	return &run, nil
}

// LoadSeries returns one POI's hourly series for a run, ordered by tick.
func (pg *Postgres) LoadSeries(ctx context.Context, runID string, id poi.ID) ([]SeriesPoint, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From("snapshots").
		Select("tick", "at", "capacity", "occupancy").
		Where(goqu.Ex{"run_id": runID, "poi_id": string(id)}).
		Order(goqu.I("tick").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build series query: %w", err)
	}

	rows, err := pg.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SeriesPoint, error) {
		var (
			p  SeriesPoint
			at time.Time
		)
		err := row.Scan(&p.Tick, &at, &p.Capacity, &p.Occupancy)
		p.At = at.UTC()
		return p, err
	})
}
