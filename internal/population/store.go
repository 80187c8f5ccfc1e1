package population

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/footfall/internal/poi"
)

var (
	// ErrUnknownHome is a configuration error: a record's home is not a
	// known POI.
	ErrUnknownHome = errors.New("unknown home poi")
	// ErrDuplicatePerson is returned when two records share an id.
	ErrDuplicatePerson = errors.New("duplicate person id")
	// ErrUnknownPerson is returned for an id not in the store.
	ErrUnknownPerson = errors.New("unknown person")
	// ErrAlreadyPlaced signals an attempt to place a person who already
	// occupies a POI. A person is at most at one POI at a time.
	ErrAlreadyPlaced = errors.New("person already placed")
	// ErrInvalidDecay is returned for a decay factor outside (0, 1].
	ErrInvalidDecay = errors.New("decay factor out of range")
)

// Catalog answers whether a POI id exists.
type Catalog interface {
	Has(id poi.ID) bool
}

// TendencyParams controls habit formation.
type TendencyParams struct {
	// Increment is added to tendency[poi] on each admission.
	Increment float64
	// Ceiling caps tendency after reinforcement. Zero or negative means no cap.
	Ceiling float64
	// Home seeds tendency[home] at load time.
	Home float64
}

// DefaultTendencyParams returns unit reinforcement capped at 5.
func DefaultTendencyParams() TendencyParams {
	return TendencyParams{Increment: 1, Ceiling: 5}
}

// Store owns every Person. Persons are kept in ascending id order, which is
// the processing order of the engine.
type Store struct {
	people []*Person
	index  map[PersonID]*Person
	params TendencyParams
}

// NewStore validates records against the catalog and builds the store.
// Every person starts idle.
func NewStore(records []Record, catalog Catalog, params TendencyParams) (*Store, error) {
	s := &Store{
		people: make([]*Person, 0, len(records)),
		index:  make(map[PersonID]*Person, len(records)),
		params: params,
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if !catalog.Has(r.Home) {
			return nil, fmt.Errorf("person %d home %q: %w", r.ID, r.Home, ErrUnknownHome)
		}
		if _, dup := s.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePerson, r.ID)
		}

		p := &Person{
			ID:       r.ID,
			Sex:      r.Sex,
			Age:      r.Age,
			Home:     r.Home,
			Current:  poi.None,
			Tendency: make(map[poi.ID]float64),
		}
		if params.Home > 0 {
			p.Tendency[r.Home] = params.Home
		}
		s.index[r.ID] = p
		s.people = append(s.people, p)
	}

	sort.Slice(s.people, func(i, j int) bool {
		return s.people[i].ID < s.people[j].ID
	})
	return s, nil
}

// Len returns the number of persons.
func (s *Store) Len() int { return len(s.people) }

// People returns all persons in ascending id order. Callers must not
// mutate the returned persons; use the Store methods.
func (s *Store) People() []*Person { return s.people }

// IDs returns all person ids in ascending order.
func (s *Store) IDs() []PersonID {
	ids := make([]PersonID, len(s.people))
	for i, p := range s.people {
		ids[i] = p.ID
	}
	return ids
}

// Get returns the person with the given id.
func (s *Store) Get(id PersonID) (*Person, error) {
	p, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPerson, id)
	}
	return p, nil
}

// SetLocation moves a person to loc, or to poi.None. Placing a person who
// is already at a POI fails with ErrAlreadyPlaced.
func (s *Store) SetLocation(id PersonID, loc poi.ID) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if loc != poi.None && p.Current != poi.None {
		return fmt.Errorf("place person %d at %s while at %s: %w", id, loc, p.Current, ErrAlreadyPlaced)
	}
	p.Current = loc
	return nil
}

// ReinforceTendency strengthens the habit toward loc and returns the new value.
func (s *Store) ReinforceTendency(id PersonID, loc poi.ID) (float64, error) {
	p, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	v := p.Tendency[loc] + s.params.Increment
	if s.params.Ceiling > 0 && v > s.params.Ceiling {
		v = s.params.Ceiling
	}
	p.Tendency[loc] = v
	return v, nil
}

// DecayTendencies multiplies every habit strength of a person by factor.
func (s *Store) DecayTendencies(id PersonID, factor float64) error {
	if factor <= 0 || factor > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidDecay, factor)
	}
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if factor == 1 {
		return nil
	}
	for k, v := range p.Tendency {
		p.Tendency[k] = v * factor
	}
	return nil
}

// Located counts persons per occupied POI.
func (s *Store) Located() map[poi.ID]int {
	out := make(map[poi.ID]int)
	for _, p := range s.people {
		if p.Current != poi.None {
			out[p.Current]++
		}
	}
	return out
}

// IdleCount returns the number of persons at no POI.
func (s *Store) IdleCount() int {
	n := 0
	for _, p := range s.people {
		if p.Idle() {
			n++
		}
	}
	return n
}
