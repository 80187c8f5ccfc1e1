package report

import (
	"context"
	"log/slog"
	"strings"

	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// Locator looks up a person's current state.
type Locator interface {
	Get(id population.PersonID) (*population.Person, error)
}

// PathTracker follows one person through the run, recording the name of
// the POI they occupy after each hour ("None" when idle).
type PathTracker struct {
	people Locator
	names  map[poi.ID]string
	id     population.PersonID
	path   []string
}

// NewPathTracker tracks person id. Names come from the catalog.
func NewPathTracker(people Locator, catalog []*poi.POI, id population.PersonID) *PathTracker {
	names := make(map[poi.ID]string, len(catalog))
	for _, p := range catalog {
		names[p.ID] = p.Name
	}
	return &PathTracker{people: people, names: names, id: id}
}

// Record implements Sink.
func (t *PathTracker) Record(_ context.Context, _ poi.Snapshot) error {
	p, err := t.people.Get(t.id)
	if err != nil {
		return err
	}
	if p.Idle() {
		t.path = append(t.path, "None")
		return nil
	}
	name, ok := t.names[p.Current]
	if !ok {
		name = string(p.Current)
	}
	t.path = append(t.path, name)
	return nil
}

// Path returns the recorded locations, one per hour.
func (t *PathTracker) Path() []string { return t.path }

// Close logs the path.
func (t *PathTracker) Close() error {
	slog.Info("tracked person path",
		"person", t.id,
		"hours", len(t.path),
		"path", strings.Join(t.path, " -> "),
	)
	return nil
}
