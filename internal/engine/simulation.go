// Simulation ties the POI registry, the person store and the two decision
// steps together and runs them once per simulated hour.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// ErrConservation signals that occupancy counters disagree with person
// locations.
var ErrConservation = errors.New("occupancy conservation violated")

// Simulation holds the complete run state.
type Simulation struct {
	Registry *poi.Registry
	People   *population.Store
	Params   Params

	Leave *LeaveEngine
	Enter *EnterEngine

	// CheckInvariants verifies occupancy conservation after every hour.
	CheckInvariants bool

	LastTick int // most recent tick processed, -1 before the first
	Stats    SimStats
}

// SimStats tracks the most recent hour and running totals.
type SimStats struct {
	Occupied      int     `json:"occupied"`
	Idle          int     `json:"idle"`
	Evicted       int     `json:"evicted"`
	Departed      int     `json:"departed"`
	Admitted      int     `json:"admitted"`
	Unplaced      int     `json:"unplaced"` // idle with no candidate POI
	OpenPOIs      int     `json:"open_pois"`
	AvgCrowding   float64 `json:"avg_crowding"` // over open POIs
	TotalAdmitted int     `json:"total_admitted"`
	TotalLeft     int     `json:"total_left"`
}

// NewSimulation validates params and wires the leave and enter steps to
// the shared registry and store.
func NewSimulation(reg *poi.Registry, people *population.Store, params Params, src entropy.Source) (*Simulation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParams)
	}
	return &Simulation{
		Registry: reg,
		People:   people,
		Params:   params,
		Leave: &LeaveEngine{
			Registry:    reg,
			People:      people,
			Decay:       params.TendencyDecay,
			Probability: params.LeaveProbability,
			Rand:        src,
		},
		Enter: &EnterEngine{
			Registry: reg,
			People:   people,
			Params:   params,
			Rand:     src,
		},
		CheckInvariants: true,
		LastTick:        -1,
	}, nil
}

// TickHour runs departures then admissions for hour t and returns the
// resulting snapshot. Any error leaves the run unusable.
func (s *Simulation) TickHour(tick int, t time.Time) (poi.Snapshot, error) {
	left, err := s.Leave.Step(t)
	if err != nil {
		return poi.Snapshot{}, fmt.Errorf("tick %d leave: %w", tick, err)
	}
	entered, err := s.Enter.Step(t)
	if err != nil {
		return poi.Snapshot{}, fmt.Errorf("tick %d enter: %w", tick, err)
	}
	if s.CheckInvariants {
		if err := s.CheckConservation(); err != nil {
			return poi.Snapshot{}, fmt.Errorf("tick %d: %w", tick, err)
		}
	}

	s.LastTick = tick
	snap := s.Registry.Snapshot(tick, t)
	s.updateStats(left, entered, snap)

	slog.Debug("hour simulated",
		"tick", tick,
		"time", t.Format(time.RFC3339),
		"evicted", left.Evicted,
		"departed", left.Departed,
		"admitted", entered.Admitted,
		"unplaced", entered.Idle,
		"occupied", s.Stats.Occupied,
	)
	return snap, nil
}

// CheckConservation verifies that every POI's counter equals the number
// of persons located there.
func (s *Simulation) CheckConservation() error {
	located := s.People.Located()
	counts := s.Registry.Counts()

	var bad []string
	for id, n := range counts {
		if located[id] != n {
			bad = append(bad, fmt.Sprintf("%s: counter %d, persons %d", id, n, located[id]))
		}
		delete(located, id)
	}
	for id, n := range located {
		bad = append(bad, fmt.Sprintf("%s: %d persons at unknown poi", id, n))
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("%w: %v", ErrConservation, bad)
	}
	return nil
}

// DailyReport logs a summary of the simulated day ending at tick.
func (s *Simulation) DailyReport(tick int, t time.Time) error {
	slog.Info("daily report",
		"tick", tick,
		"time", t.Format("Mon 2006-01-02 15:04"),
		"occupied", humanize.Comma(int64(s.Stats.Occupied)),
		"idle", humanize.Comma(int64(s.Stats.Idle)),
		"open_pois", s.Stats.OpenPOIs,
		"avg_crowding", fmt.Sprintf("%.3f", s.Stats.AvgCrowding),
		"total_admitted", humanize.Comma(int64(s.Stats.TotalAdmitted)),
		"total_left", humanize.Comma(int64(s.Stats.TotalLeft)),
	)
	return nil
}

func (s *Simulation) updateStats(left LeaveResult, entered EnterResult, snap poi.Snapshot) {
	s.Stats.Evicted = left.Evicted
	s.Stats.Departed = left.Departed
	s.Stats.Admitted = entered.Admitted
	s.Stats.Unplaced = entered.Idle
	s.Stats.TotalAdmitted += entered.Admitted
	s.Stats.TotalLeft += left.Evicted + left.Departed

	s.Stats.Occupied = s.Registry.TotalOccupancy()
	s.Stats.Idle = s.People.IdleCount()

	open := 0
	crowding := 0.0
	for _, r := range snap.Rows {
		if r.Capacity > 0 {
			open++
			crowding += float64(r.Occupancy) / r.Capacity
		}
	}
	s.Stats.OpenPOIs = open
	s.Stats.AvgCrowding = 0
	if open > 0 {
		s.Stats.AvgCrowding = crowding / float64(open)
	}
}
