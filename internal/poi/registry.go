package poi

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnknownPOI is returned for an ID missing from the catalog.
	ErrUnknownPOI = errors.New("unknown poi")
	// ErrInvalidPOI is returned when a catalog entry cannot be registered.
	ErrInvalidPOI = errors.New("invalid poi")
	// ErrOccupancyUnderflow signals a Release on an empty POI. It means the
	// engine's bookkeeping is broken and the run cannot continue.
	ErrOccupancyUnderflow = errors.New("occupancy underflow")
)

// Registry owns the POI catalog and one occupancy counter per POI.
// Counters are changed only through Admit and Release, which the leave and
// enter steps of the engine call; everything else reads.
type Registry struct {
	pois      []*POI
	index     map[ID]int
	occupancy []int
}

// NewRegistry builds a registry from a catalog, preserving its order.
func NewRegistry(catalog []*POI) (*Registry, error) {
	r := &Registry{
		pois:      make([]*POI, 0, len(catalog)),
		index:     make(map[ID]int, len(catalog)),
		occupancy: make([]int, len(catalog)),
	}
	for i, p := range catalog {
		switch {
		case p == nil:
			return nil, fmt.Errorf("%w: entry %d is nil", ErrInvalidPOI, i)
		case p.ID == None:
			return nil, fmt.Errorf("%w: entry %d has empty id", ErrInvalidPOI, i)
		case p.Curve == nil:
			return nil, fmt.Errorf("%w: %s has no capacity curve", ErrInvalidPOI, p.ID)
		}
		if _, dup := r.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidPOI, p.ID)
		}
		r.index[p.ID] = len(r.pois)
		r.pois = append(r.pois, p)
	}
	return r, nil
}

// Len returns the number of POIs.
func (r *Registry) Len() int { return len(r.pois) }

// POIs returns the catalog in registration order. Callers must not modify it.
func (r *Registry) POIs() []*POI { return r.pois }

// Has reports whether id is in the catalog.
func (r *Registry) Has(id ID) bool {
	_, ok := r.index[id]
	return ok
}

// Get returns the POI with the given id.
func (r *Registry) Get(id ID) (*POI, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.pois[i], true
}

// CapacityAt evaluates id's capacity curve at t. Negative or NaN values
// read as zero (closed).
func (r *Registry) CapacityAt(id ID, t time.Time) (float64, error) {
	i, ok := r.index[id]
	if !ok {
		return 0, fmt.Errorf("capacity of %s: %w", id, ErrUnknownPOI)
	}
	return capacityOf(r.pois[i], t), nil
}

// Capacities evaluates every curve at t, in catalog order.
func (r *Registry) Capacities(t time.Time) []float64 {
	caps := make([]float64, len(r.pois))
	for i, p := range r.pois {
		caps[i] = capacityOf(p, t)
	}
	return caps
}

func capacityOf(p *POI, t time.Time) float64 {
	c := p.Curve.At(t)
	if math.IsNaN(c) {
		return 0
	}
	return clamp(c, 0, math.Inf(1))
}

// OccupancyOf returns the current occupant count; zero for unknown ids.
func (r *Registry) OccupancyOf(id ID) int {
	i, ok := r.index[id]
	if !ok {
		return 0
	}
	return r.occupancy[i]
}

// Admit records one more occupant at id.
func (r *Registry) Admit(id ID) error {
	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("admit %s: %w", id, ErrUnknownPOI)
	}
	r.occupancy[i]++
	return nil
}

// Release records one occupant leaving id.
func (r *Registry) Release(id ID) error {
	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("release %s: %w", id, ErrUnknownPOI)
	}
	if r.occupancy[i] == 0 {
		return fmt.Errorf("release %s: %w", id, ErrOccupancyUnderflow)
	}
	r.occupancy[i]--
	return nil
}

// TotalOccupancy sums all counters.
func (r *Registry) TotalOccupancy() int {
	total := 0
	for _, n := range r.occupancy {
		total += n
	}
	return total
}

// Counts returns a copy of the counters keyed by id.
func (r *Registry) Counts() map[ID]int {
	out := make(map[ID]int, len(r.pois))
	for i, p := range r.pois {
		out[p.ID] = r.occupancy[i]
	}
	return out
}

// Snapshot captures capacity at t and current occupancy for every POI.
func (r *Registry) Snapshot(tick int, t time.Time) Snapshot {
	rows := make([]Row, len(r.pois))
	for i, p := range r.pois {
		rows[i] = Row{
			ID:        p.ID,
			Name:      p.Name,
			Capacity:  capacityOf(p, t),
			Occupancy: r.occupancy[i],
		}
	}
	return Snapshot{Tick: tick, Time: t, Rows: rows}
}
