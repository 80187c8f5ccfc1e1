// Departures: who vacates their POI this hour.
package engine

import (
	"fmt"
	"time"

	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// LeaveResult counts the outcomes of one leave step.
type LeaveResult struct {
	Evicted  int // forced out because the POI is closed
	Departed int // left by choice
	Stayed   int
}

// LeaveEngine decides, each hour, which occupants vacate their POI.
// Dwell time is geometric: every hour an occupant of an open POI leaves
// with the same probability, so no arrival time is tracked.
type LeaveEngine struct {
	Registry    *poi.Registry
	People      *population.Store
	Decay       float64
	Probability float64
	Rand        entropy.Source
}

// Step runs departures for hour t. Every person's tendencies decay,
// whether or not they are at a POI.
func (e *LeaveEngine) Step(t time.Time) (LeaveResult, error) {
	var res LeaveResult
	for _, p := range e.People.People() {
		if err := e.People.DecayTendencies(p.ID, e.Decay); err != nil {
			return res, fmt.Errorf("decay person %d: %w", p.ID, err)
		}
		if p.Idle() {
			continue
		}

		at := p.Current
		capacity, err := e.Registry.CapacityAt(at, t)
		if err != nil {
			return res, fmt.Errorf("person %d: %w", p.ID, err)
		}

		switch {
		case capacity == 0:
			res.Evicted++
		case e.Rand.Float64(entropy.StreamLeave, int(p.ID), t) < e.Probability:
			res.Departed++
		default:
			res.Stayed++
			continue
		}

		if err := e.People.SetLocation(p.ID, poi.None); err != nil {
			return res, err
		}
		if err := e.Registry.Release(at); err != nil {
			return res, fmt.Errorf("person %d leaving: %w", p.ID, err)
		}
	}
	return res, nil
}
