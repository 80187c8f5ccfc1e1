// Package persistence provides SQLite- and Postgres-backed storage for runs
// and their hourly occupancy snapshots.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/footfall/internal/poi"
)

const dialectSQLite = "sqlite3"

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		start TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pois (
		run_id TEXT NOT NULL,
		poi_id TEXT NOT NULL,
		location_name TEXT NOT NULL,
		PRIMARY KEY (run_id, poi_id)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		at TEXT NOT NULL,
		poi_id TEXT NOT NULL,
		capacity REAL NOT NULL,
		occupancy INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick, poi_id)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_poi ON snapshots(run_id, poi_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun inserts the run and its POI catalog.
func (db *DB) CreateRun(ctx context.Context, run *Run, catalog []*poi.POI) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, created_at, start, ticks, seed, params_json, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, time.Now().UTC().Format(time.RFC3339), run.Start.UTC().Format(time.RFC3339),
		run.Ticks, run.Seed, string(paramsJSON), run.Status,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO pois (run_id, poi_id, location_name) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range catalog {
		if _, err := stmt.ExecContext(ctx, run.ID, string(p.ID), p.Name); err != nil {
			return fmt.Errorf("insert poi %s: %w", p.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES ('last_run', ?)", run.ID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveSnapshot writes one hour's rows in a single transaction.
func (db *DB) SaveSnapshot(ctx context.Context, runID string, snap poi.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO snapshots
		(run_id, tick, at, poi_id, capacity, occupancy)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := snap.Time.UTC().Format(time.RFC3339)
	for _, r := range snap.Rows {
		if _, err := stmt.ExecContext(ctx, runID, snap.Tick, at, string(r.ID), r.Capacity, r.Occupancy); err != nil {
			return fmt.Errorf("insert snapshot tick %d poi %s: %w", snap.Tick, r.ID, err)
		}
	}

	return tx.Commit()
}

// FinishRun sets the final run status.
func (db *DB) FinishRun(ctx context.Context, runID, status string) error {
	res, err := db.conn.ExecContext(ctx, "UPDATE runs SET status = ? WHERE id = ?", status, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if status == StatusCompleted {
		if err := db.SaveMeta("last_completed_run", runID); err != nil {
			return err
		}
	}
	slog.Info("run finished", "run", runID, "status", status)
	return nil
}

type runRow struct {
	ID         string `db:"id"`
	Start      string `db:"start"`
	Ticks      int    `db:"ticks"`
	Seed       int64  `db:"seed"`
	ParamsJSON string `db:"params_json"`
	Status     string `db:"status"`
}

// GetRun loads a run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var row runRow
	err := db.conn.GetContext(ctx, &row,
		"SELECT id, start, ticks, seed, params_json, status FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	start, err := time.Parse(time.RFC3339, row.Start)
	if err != nil {
		return nil, fmt.Errorf("run %s start: %w", runID, err)
	}
	run := &Run{ID: row.ID, Start: start, Ticks: row.Ticks, Seed: row.Seed, Status: row.Status}
	if err := json.Unmarshal([]byte(row.ParamsJSON), &run.Params); err != nil {
		return nil, fmt.Errorf("run %s params: %w", runID, err)
	}
	return run, nil
}

type seriesRow struct {
	Tick      int     `db:"tick"`
	At        string  `db:"at"`
	Capacity  float64 `db:"capacity"`
	Occupancy int     `db:"occupancy"`
}

// LoadSeries returns one POI's hourly series for a run, ordered by tick.
func (db *DB) LoadSeries(ctx context.Context, runID string, id poi.ID) ([]SeriesPoint, error) {
	query, args, err := goqu.Dialect(dialectSQLite).
		From("snapshots").
		Select("tick", "at", "capacity", "occupancy").
		Where(goqu.Ex{"run_id": runID, "poi_id": string(id)}).
		Order(goqu.I("tick").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build series query: %w", err)
	}

	var rows []seriesRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	points := make([]SeriesPoint, len(rows))
	for i, r := range rows {
		at, err := time.Parse(time.RFC3339, r.At)
		if err != nil {
			return nil, fmt.Errorf("tick %d time: %w", r.Tick, err)
		}
		points[i] = SeriesPoint{Tick: r.Tick, At: at, Capacity: r.Capacity, Occupancy: r.Occupancy}
	}
	return points, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}
