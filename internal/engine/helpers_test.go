package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

var t0 = time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

func hour(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

// stepCurve returns capacity values[h] for hour h after t0, and the last
// value past the end.
func stepCurve(values ...float64) poi.Curve {
	return poi.CurveFunc(func(t time.Time) float64 {
		h := int(t.Sub(t0).Hours())
		if h < 0 {
			h = 0
		}
		if h >= len(values) {
			h = len(values) - 1
		}
		return values[h]
	})
}

type fixture struct {
	reg    *poi.Registry
	people *population.Store
	sim    *Simulation
}

func newFixture(t *testing.T, catalog []*poi.POI, persons int, params Params, src entropy.Source) *fixture {
	t.Helper()
	reg, err := poi.NewRegistry(catalog)
	require.NoError(t, err)

	records := make([]population.Record, persons)
	for i := range records {
		records[i] = population.Record{
			ID:   population.PersonID(i + 1),
			Sex:  population.Sex(i % 2),
			Age:  20 + i%50,
			Home: catalog[i%len(catalog)].ID,
		}
	}
	people, err := population.NewStore(records, reg, population.DefaultTendencyParams())
	require.NoError(t, err)

	sim, err := NewSimulation(reg, people, params, src)
	require.NoError(t, err)
	return &fixture{reg: reg, people: people, sim: sim}
}

func testParams() Params {
	p := DefaultParams()
	p.LeaveProbability = 0.4
	return p
}

func townCatalog() []*poi.POI {
	catalog := make([]*poi.POI, 0, 6)
	for i, c := range []float64{3, 5, 8, 2, 12, 1} {
		catalog = append(catalog, &poi.POI{
			ID:    poi.ID(fmt.Sprintf("poi-%d", i)),
			Name:  fmt.Sprintf("Place %d", i),
			Curve: poi.Constant(c),
		})
	}
	return catalog
}
