package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/poi"
)

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
		valid  bool
	}{
		{"defaults", func(p *Params) {}, true},
		{"alpha_zero", func(p *Params) { p.Alpha = 0 }, true},
		{"alpha_one", func(p *Params) { p.Alpha = 1 }, true},
		{"alpha_above", func(p *Params) { p.Alpha = 1.01 }, false},
		{"alpha_below", func(p *Params) { p.Alpha = -0.1 }, false},
		{"alpha_nan", func(p *Params) { p.Alpha = math.NaN() }, false},
		{"occupancy_weight_zero", func(p *Params) { p.OccupancyWeight = 0 }, true},
		{"occupancy_weight_negative", func(p *Params) { p.OccupancyWeight = -1 }, false},
		{"decay_one", func(p *Params) { p.TendencyDecay = 1 }, true},
		{"decay_zero", func(p *Params) { p.TendencyDecay = 0 }, false},
		{"decay_above", func(p *Params) { p.TendencyDecay = 1.5 }, false},
		{"leave_above", func(p *Params) { p.LeaveProbability = 2 }, false},
		{"temperature_zero", func(p *Params) { p.Temperature = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.modify(&p)
			err := p.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}
}

func TestLeaveEngine_ProbabilityExtremes(t *testing.T) {
	catalog := []*poi.POI{{ID: "x", Name: "Open", Curve: poi.Constant(100)}}

	params := testParams()
	params.LeaveProbability = 1
	f := newFixture(t, catalog, 10, params, entropy.Fixed(0))
	_, err := f.sim.Enter.Step(t0)
	require.NoError(t, err)
	require.Equal(t, 10, f.reg.OccupancyOf("x"))

	res, err := f.sim.Leave.Step(hour(1))
	require.NoError(t, err)
	assert.Equal(t, LeaveResult{Departed: 10}, res)
	assert.Equal(t, 0, f.reg.OccupancyOf("x"))

	params.LeaveProbability = 0.3
	g := newFixture(t, catalog, 10, params, entropy.Fixed(0.99))
	_, err = g.sim.Enter.Step(t0)
	require.NoError(t, err)
	res, err = g.sim.Leave.Step(hour(1))
	require.NoError(t, err)
	assert.Equal(t, LeaveResult{Stayed: 10}, res)
	assert.Equal(t, 10, g.reg.OccupancyOf("x"))
}

func TestLeaveEngine_DecaysIdlePersons(t *testing.T) {
	catalog := []*poi.POI{{ID: "x", Name: "Open", Curve: poi.Constant(1)}}
	params := testParams()
	params.TendencyDecay = 0.5
	f := newFixture(t, catalog, 1, params, entropy.NewSeeded(1))

	_, err := f.people.ReinforceTendency(1, "x")
	require.NoError(t, err)
	_, err = f.sim.Leave.Step(t0)
	require.NoError(t, err)

	p, _ := f.people.Get(1)
	assert.True(t, p.Idle())
	assert.Equal(t, 0.5, p.TendencyFor("x"))
}

func TestEnterEngine_LastSlotNotDoubleBooked(t *testing.T) {
	catalog := []*poi.POI{{ID: "x", Name: "Tiny", Curve: poi.Constant(1)}}
	f := newFixture(t, catalog, 3, testParams(), entropy.NewSeeded(3))

	res, err := f.sim.Enter.Step(t0)
	require.NoError(t, err)
	assert.Equal(t, EnterResult{Admitted: 1, Idle: 2}, res)
	assert.Equal(t, 1, f.reg.OccupancyOf("x"))

	first, _ := f.people.Get(1)
	assert.Equal(t, poi.ID("x"), first.Current, "lowest id is served first")
}

func TestEnterEngine_FractionalCapacity(t *testing.T) {
	catalog := []*poi.POI{{ID: "x", Name: "Fraction", Curve: poi.Constant(1.5)}}
	f := newFixture(t, catalog, 3, testParams(), entropy.NewSeeded(3))

	_, err := f.sim.Enter.Step(t0)
	require.NoError(t, err)
	assert.Equal(t, 2, f.reg.OccupancyOf("x"), "slack 0.5 still admits")
}

func TestEnterEngine_HabitDominatesWhenAlphaZero(t *testing.T) {
	catalog := []*poi.POI{
		{ID: "a", Name: "A", Curve: poi.Constant(50)},
		{ID: "b", Name: "B", Curve: poi.Constant(50)},
	}
	params := testParams()
	params.Alpha = 0
	params.OccupancyWeight = 0
	f := newFixture(t, catalog, 1, params, entropy.NewSeeded(11))
	for i := 0; i < 4; i++ {
		_, err := f.people.ReinforceTendency(1, "b")
		require.NoError(t, err)
	}

	// Probability of "b" is e^4/(1+e^4) ≈ 0.982 for every hour.
	hits := 0
	for h := 0; h < 200; h++ {
		p, _ := f.people.Get(1)
		if !p.Idle() {
			require.NoError(t, f.reg.Release(p.Current))
			require.NoError(t, f.people.SetLocation(1, poi.None))
		}
		// Keep the habits fixed across hours.
		p.Tendency["a"] = 0
		p.Tendency["b"] = 4
		_, err := f.sim.Enter.Step(hour(h))
		require.NoError(t, err)
		if p.Current == "b" {
			hits++
		}
	}
	assert.Greater(t, hits, 180)
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float64{1, 2, 3}, 1)
	sum := 0.0
	for _, p := range probs {
		assert.Positive(t, p)
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.Less(t, probs[0], probs[1])
	assert.Less(t, probs[1], probs[2])

	huge := softmax([]float64{1e6, 1e6 - 1}, 1)
	assert.False(t, math.IsNaN(huge[0]))
	assert.InDelta(t, 1/(1+math.Exp(-1)), huge[0], 1e-12)

	uniform := softmax([]float64{5, 5, 5, 5}, 1)
	for _, p := range uniform {
		assert.InDelta(t, 0.25, p, 1e-12)
	}

	flat := softmax([]float64{0, 10}, 1e9)
	assert.InDelta(t, 0.5, flat[0], 1e-6, "high temperature flattens")
}

func TestSample(t *testing.T) {
	probs := []float64{0.2, 0.5, 0.3}
	assert.Equal(t, 0, sample(probs, 0))
	assert.Equal(t, 0, sample(probs, 0.19))
	assert.Equal(t, 1, sample(probs, 0.2))
	assert.Equal(t, 1, sample(probs, 0.69))
	assert.Equal(t, 2, sample(probs, 0.71))
	assert.Equal(t, 2, sample(probs, 0.999999))
	assert.Equal(t, 2, sample([]float64{0.2, 0.5, 0.29999}, 0.9999999), "rounding falls to last")
}

func TestEngine_RunsCallbacksInOrder(t *testing.T) {
	eng := NewEngine(t0, 50)
	var hours []int
	var days, weeks int
	eng.OnHour = func(tick int, at time.Time) error {
		hours = append(hours, tick)
		assert.Equal(t, hour(tick), at)
		return nil
	}
	eng.OnDay = func(tick int, at time.Time) error {
		days++
		assert.Equal(t, 23, tick%TicksPerDay)
		return nil
	}
	eng.OnWeek = func(int, time.Time) error { weeks++; return nil }

	require.NoError(t, eng.Run(context.Background()))
	assert.Len(t, hours, 50)
	assert.Equal(t, 0, hours[0])
	assert.Equal(t, 49, hours[49])
	assert.Equal(t, 2, days)
	assert.Equal(t, 0, weeks)
	assert.Equal(t, 50, eng.Tick)
}

func TestEngine_HaltsOnError(t *testing.T) {
	boom := errors.New("boom")
	eng := NewEngine(t0, 10)
	eng.OnHour = func(tick int, _ time.Time) error {
		if tick == 3 {
			return boom
		}
		return nil
	}
	err := eng.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, eng.Tick)
}

func TestEngine_StopsBetweenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := NewEngine(t0, 10)
	eng.OnHour = func(tick int, _ time.Time) error {
		if tick == 4 {
			cancel()
		}
		return nil
	}
	err := eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, eng.Tick, "the tick in progress completes")
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Mon 2024-03-04 06:00 (hour 1, day 1)", SimTime(t0, 0))
	assert.Equal(t, "Tue 2024-03-05 07:00 (hour 26, day 2)", SimTime(t0, 25))
}
