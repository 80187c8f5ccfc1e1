package entropy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

func TestSeeded_Reproducible(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)

	for person := 0; person < 50; person++ {
		at := t0.Add(time.Duration(person%5) * time.Hour)
		assert.Equal(t, a.Float64(StreamLeave, person, at), b.Float64(StreamLeave, person, at))
	}
}

func TestSeeded_OrderIndependent(t *testing.T) {
	src := NewSeeded(7)
	first := src.Float64(StreamEnter, 3, t0)
	for i := 0; i < 100; i++ {
		src.Float64(StreamEnter, i, t0)
	}
	assert.Equal(t, first, src.Float64(StreamEnter, 3, t0))
}

func TestSeeded_KeysDiffer(t *testing.T) {
	src := NewSeeded(7)
	base := src.Float64(StreamLeave, 3, t0)

	assert.NotEqual(t, base, src.Float64(StreamEnter, 3, t0), "streams")
	assert.NotEqual(t, base, src.Float64(StreamLeave, 4, t0), "persons")
	assert.NotEqual(t, base, src.Float64(StreamLeave, 3, t0.Add(time.Hour)), "hours")
	assert.NotEqual(t, base, NewSeeded(8).Float64(StreamLeave, 3, t0), "seeds")
	assert.Equal(t, base, src.Float64(StreamLeave, 3, t0.Add(30*time.Minute)), "same hour")
}

func TestSeeded_WideIDsDiffer(t *testing.T) {
	src := NewSeeded(7)
	var wide int64 = 1<<32 + 1
	assert.NotEqual(t, src.Float64(StreamLeave, 1, t0), src.Float64(StreamLeave, int(wide), t0))
}

func TestSeeded_RangeAndSpread(t *testing.T) {
	src := NewSeeded(1)
	below := 0
	const n = 2000
	for i := 0; i < n; i++ {
		v := src.Float64(StreamLeave, i, t0)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
		if v < 0.5 {
			below++
		}
	}
	assert.InDelta(t, n/2, below, n/10)
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "leave", StreamLeave.String())
	assert.Equal(t, "enter", StreamEnter.String())
	assert.Equal(t, "unknown", Stream(0).String())
}
