package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/google/uuid"

	"github.com/talgya/footfall/internal/poi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run describes one simulation run.
type Run struct {
	ID     string            `db:"id" json:"id"`
	Start  time.Time         `db:"-" json:"start"`
	Ticks  int               `db:"ticks" json:"ticks"`
	Seed   int64             `db:"seed" json:"seed"`
	Params map[string]string `db:"-" json:"params"`
	Status string            `db:"status" json:"status"`
}

// NewRun creates a run record with a fresh id.
func NewRun(start time.Time, ticks int, seed int64, params map[string]string) *Run {
	return &Run{
		ID:     uuid.NewString(),
		Start:  start,
		Ticks:  ticks,
		Seed:   seed,
		Params: params,
		Status: StatusRunning,
	}
}

// SeriesPoint is one POI's state at one tick.
type SeriesPoint struct {
	Tick      int       `json:"tick"`
	At        time.Time `json:"at"`
	Capacity  float64   `json:"capacity"`
	Occupancy int       `json:"occupancy"`
}

// Store persists runs and their hourly snapshots.
type Store interface {
	CreateRun(ctx context.Context, run *Run, catalog []*poi.POI) error
	SaveSnapshot(ctx context.Context, runID string, snap poi.Snapshot) error
	FinishRun(ctx context.Context, runID, status string) error
	LoadSeries(ctx context.Context, runID string, id poi.ID) ([]SeriesPoint, error)
	Close() error
}

// Sink adapts a Store to report.Sink for one run.
type Sink struct {
	store  Store
	runID  string
	status string
}

// NewSink records snapshots for runID into store.
func NewSink(store Store, runID string) *Sink {
	return &Sink{store: store, runID: runID, status: StatusCompleted}
}

// Record implements report.Sink.
func (s *Sink) Record(ctx context.Context, snap poi.Snapshot) error {
	return s.store.SaveSnapshot(ctx, s.runID, snap)
}

// Fail marks the run as failed when the sink is closed.
func (s *Sink) Fail() { s.status = StatusFailed }

// Close finishes the run and closes the store.
func (s *Sink) Close() error {
	if err := s.store.FinishRun(context.Background(), s.runID, s.status); err != nil {
		slog.Error("failed to finish run", "run", s.runID, "error", err)
	}
	return s.store.Close()
}
