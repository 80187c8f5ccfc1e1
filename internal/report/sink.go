// Package report receives the per-hour snapshots produced by the engine and
// turns them into files, logs, database rows and API responses. Nothing in
// this package feeds back into the simulation.
package report

import (
	"context"
	"errors"
	"sync"

	"github.com/talgya/footfall/internal/poi"
)

// Sink consumes one snapshot per simulated hour.
type Sink interface {
	Record(ctx context.Context, snap poi.Snapshot) error
	Close() error
}

// Failer is implemented by sinks whose output differs when the run halts
// before its last tick.
type Failer interface {
	Fail()
}

// Multi fans a snapshot out to several sinks in order.
type Multi []Sink

// Record implements Sink. The first failing sink stops the fan-out.
func (m Multi) Record(ctx context.Context, snap poi.Snapshot) error {
	for _, s := range m {
		if err := s.Record(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Fail forwards to every member that implements Failer.
func (m Multi) Fail() {
	for _, s := range m {
		if f, ok := s.(Failer); ok {
			f.Fail()
		}
	}
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest keeps the most recent snapshot for concurrent readers such as the
// HTTP API.
type Latest struct {
	mu    sync.RWMutex
	snap  poi.Snapshot
	ok    bool
	count int
}

// Record implements Sink.
func (l *Latest) Record(_ context.Context, snap poi.Snapshot) error {
	rows := make([]poi.Row, len(snap.Rows))
	copy(rows, snap.Rows)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = poi.Snapshot{Tick: snap.Tick, Time: snap.Time, Rows: rows}
	l.ok = true
	l.count++
	return nil
}

// Close implements Sink.
func (l *Latest) Close() error { return nil }

// Get returns the latest snapshot, if any has been recorded.
func (l *Latest) Get() (poi.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.ok
}

// Recorded returns how many snapshots have been seen.
func (l *Latest) Recorded() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
