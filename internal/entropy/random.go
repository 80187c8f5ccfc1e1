// Package entropy provides the reproducible random draws behind leave and
// enter decisions. Each draw is a pure function of the run seed, the
// decision stream, the person and the simulated hour, so results do not
// depend on how many draws happened before.
package entropy

import (
	"math/rand/v2"
	"time"
)

// Stream separates independent decision kinds for the same person and hour.
type Stream uint8

const (
	StreamLeave Stream = 1
	StreamEnter Stream = 2
)

// String returns the stream name used in logs.
func (s Stream) String() string {
	switch s {
	case StreamLeave:
		return "leave"
	case StreamEnter:
		return "enter"
	default:
		return "unknown"
	}
}

// Source yields a float64 in [0, 1) for one decision.
type Source interface {
	Float64(stream Stream, person int, t time.Time) float64
}

// Seeded is the default Source: a PCG generator keyed per draw.
type Seeded struct {
	Seed uint64
}

// NewSeeded creates a seeded source.
func NewSeeded(seed int64) Seeded {
	return Seeded{Seed: uint64(seed)}
}

// Float64 implements Source.
func (s Seeded) Float64(stream Stream, person int, t time.Time) float64 {
	hour := uint64(t.Unix()) / 3600
	key := mix(mix(uint64(person)) ^ uint64(stream))
	rng := rand.New(rand.NewPCG(mix(s.Seed^key), mix(hour+0x9e3779b97f4a7c15)))
	return rng.Float64()
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Fixed always returns the same value. Useful to force outcomes in tests
// and dry runs: 0 makes every Bernoulli draw succeed, values near 1 make
// every draw fail.
type Fixed float64

// Float64 implements Source.
func (f Fixed) Float64(Stream, int, time.Time) float64 { return float64(f) }
