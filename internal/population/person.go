// Package population provides the person data model and the store that
// holds each person's location and habitual POI preferences.
package population

import (
	"errors"
	"fmt"

	"github.com/talgya/footfall/internal/poi"
)

// PersonID is a unique identifier for a person.
type PersonID int

// Sex represents biological sex as recorded in the population file.
type Sex uint8

const (
	SexMale   Sex = 0
	SexFemale Sex = 1
)

// MaxAge bounds plausible ages in population records.
const MaxAge = 120

// ErrInvalidRecord is returned for a population record that fails validation.
var ErrInvalidRecord = errors.New("invalid population record")

// Record is the static, externally sourced part of a person.
type Record struct {
	ID   PersonID `json:"id"`
	Sex  Sex      `json:"sex"`
	Age  int      `json:"age"`
	Home poi.ID   `json:"home"`
}

// Validate checks field ranges. Whether Home exists in the catalog is
// checked by NewStore.
func (r Record) Validate() error {
	if r.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrInvalidRecord, r.ID)
	}
	if r.Sex != SexMale && r.Sex != SexFemale {
		return fmt.Errorf("%w: person %d has sex %d", ErrInvalidRecord, r.ID, r.Sex)
	}
	if r.Age < 0 || r.Age > MaxAge {
		return fmt.Errorf("%w: person %d has age %d", ErrInvalidRecord, r.ID, r.Age)
	}
	if r.Home == poi.None {
		return fmt.Errorf("%w: person %d has no home", ErrInvalidRecord, r.ID)
	}
	return nil
}

// Source supplies population records before the simulation starts.
type Source interface {
	LoadPeople() ([]Record, error)
}

// Person is a simulated individual. Only Current and Tendency change
// during a run, and only through the Store.
type Person struct {
	ID   PersonID `json:"id"`
	Sex  Sex      `json:"sex"`
	Age  int      `json:"age"`
	Home poi.ID   `json:"home"`

	// Current is the occupied POI, or poi.None when idle.
	Current poi.ID `json:"current"`

	// Tendency is habit strength per POI. Absent entries are zero.
	Tendency map[poi.ID]float64 `json:"tendency"`
}

// Idle reports whether the person is at no POI.
func (p *Person) Idle() bool {
	return p.Current == poi.None
}

// TendencyFor returns the habit strength toward id.
func (p *Person) TendencyFor(id poi.ID) float64 {
	return p.Tendency[id]
}
