package main

import (
	"fmt"
	"strconv"

	"github.com/talgya/footfall/internal/config"
	"github.com/talgya/footfall/internal/engine"
	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/ingest"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// world is everything a run needs before the first tick.
type world struct {
	catalog []*poi.POI
	reg     *poi.Registry
	people  *population.Store
	sim     *engine.Simulation
}

// buildWorld loads the inputs and wires the simulation. Any bad record
// fails the whole build.
func buildWorld(cfg *config.Config) (*world, error) {
	catalog, err := ingest.POIFile{
		Path:          cfg.Inputs.POIs,
		CapacityScale: cfg.Simulation.CapacityScale,
		Seed:          cfg.Simulation.Seed,
	}.LoadPOIs()
	if err != nil {
		return nil, err
	}
	reg, err := poi.NewRegistry(catalog)
	if err != nil {
		return nil, err
	}

	records, err := ingest.PeopleFile{Path: cfg.Inputs.People}.LoadPeople()
	if err != nil {
		return nil, err
	}
	people, err := population.NewStore(records, reg, cfg.TendencyParams())
	if err != nil {
		return nil, fmt.Errorf("build population: %w", err)
	}

	sim, err := engine.NewSimulation(reg, people, cfg.EngineParams(), entropy.NewSeeded(cfg.Simulation.Seed))
	if err != nil {
		return nil, err
	}
	sim.CheckInvariants = cfg.Simulation.CheckInvariants

	return &world{catalog: catalog, reg: reg, people: people, sim: sim}, nil
}

// trackedPerson resolves the configured id; negative means the lowest id.
func (w *world) trackedPerson(id int) (population.PersonID, bool) {
	if id >= 0 {
		if _, err := w.people.Get(population.PersonID(id)); err != nil {
			return 0, false
		}
		return population.PersonID(id), true
	}
	ids := w.people.IDs()
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// runParams flattens the effective parameters for storage with the run.
func runParams(cfg *config.Config) map[string]string {
	s := cfg.Simulation
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return map[string]string{
		"alpha":              f(s.Alpha),
		"occupancy_weight":   f(s.OccupancyWeight),
		"tendency_decay":     f(s.TendencyDecay),
		"leave_probability":  f(s.LeaveProbability),
		"temperature":        f(s.Temperature),
		"tendency_increment": f(s.TendencyIncrement),
		"tendency_ceiling":   f(s.TendencyCeiling),
		"home_tendency":      f(s.HomeTendency),
		"capacity_scale":     f(s.CapacityScale),
		"pois":               cfg.Inputs.POIs,
		"people":             cfg.Inputs.People,
	}
}
