// Package engine provides the hourly occupancy simulation: the leave and
// enter decision steps and the loop that drives them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TickSchedule: one tick is one simulated hour.
const (
	TickDuration = time.Hour
	TicksPerDay  = 24
	TicksPerWeek = 168
)

// Engine drives the simulation forward a fixed number of hours.
type Engine struct {
	Start time.Time     // simulated time of tick 0
	Ticks int           // total hours to run
	Pace  time.Duration // wall-clock delay per tick; 0 runs flat out
	Tick  int           // next tick to run

	// Callbacks for each tick layer, populated during setup. An error
	// from any callback halts the run.
	OnHour func(tick int, t time.Time) error // every tick
	OnDay  func(tick int, t time.Time) error // after every 24th tick
	OnWeek func(tick int, t time.Time) error // after every 168th tick
}

// NewEngine creates an engine for ticks hours starting at start.
func NewEngine(start time.Time, ticks int) *Engine {
	return &Engine{
		Start: start,
		Ticks: ticks,
	}
}

// TimeAt returns the simulated time of a tick.
func (e *Engine) TimeAt(tick int) time.Time {
	return e.Start.Add(time.Duration(tick) * TickDuration)
}

// Run processes every remaining tick in order. It stops early only when a
// callback fails or ctx is done; ctx is checked between ticks, never in the
// middle of one.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("simulation engine started",
		"start", e.Start.Format(time.RFC3339),
		"ticks", e.Ticks,
		"from_tick", e.Tick,
	)

	for e.Tick < e.Ticks {
		if err := ctx.Err(); err != nil {
			slog.Warn("simulation engine interrupted", "tick", e.Tick, "error", err)
			return fmt.Errorf("stopped before tick %d: %w", e.Tick, err)
		}

		began := time.Now()
		if err := e.step(); err != nil {
			return err
		}

		if e.Pace > 0 {
			if wait := e.Pace - time.Since(began); wait > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(wait):
				}
			}
		}
	}

	slog.Info("simulation engine stopped", "ticks", e.Tick)
	return nil
}

// step advances the simulation by one tick.
func (e *Engine) step() error {
	tick := e.Tick
	t := e.TimeAt(tick)

	if e.OnHour != nil {
		if err := e.OnHour(tick, t); err != nil {
			return err
		}
	}
	e.Tick++

	if e.Tick%TicksPerDay == 0 && e.OnDay != nil {
		if err := e.OnDay(tick, t); err != nil {
			return err
		}
	}
	if e.Tick%TicksPerWeek == 0 && e.OnWeek != nil {
		if err := e.OnWeek(tick, t); err != nil {
			return err
		}
	}
	return nil
}

// SimTime returns a human-readable label for a tick.
func SimTime(start time.Time, tick int) string {
	t := start.Add(time.Duration(tick) * TickDuration)
	return fmt.Sprintf("%s (hour %d, day %d)", t.Format("Mon 2006-01-02 15:04"), tick+1, tick/TicksPerDay+1)
}
