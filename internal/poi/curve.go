// Capacity curves: capacity as a pure function of simulated wall-clock time.
package poi

import (
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/exp/constraints"
)

// Curve evaluates a POI's capacity at time t. Implementations must be
// deterministic in t. Values below zero are treated as closed.
type Curve interface {
	At(t time.Time) float64
}

// CurveFunc adapts a plain function to Curve.
type CurveFunc func(t time.Time) float64

// At implements Curve.
func (f CurveFunc) At(t time.Time) float64 { return f(t) }

// Constant is a capacity that never changes.
type Constant float64

// At implements Curve.
func (c Constant) At(time.Time) float64 { return float64(c) }

// HourlyTable is a per-hour lookup table anchored at Origin. Hours past the
// end of the table wrap around, so a 168-entry table repeats weekly.
type HourlyTable struct {
	Origin time.Time
	Values []float64
}

// At implements Curve.
func (h HourlyTable) At(t time.Time) float64 {
	n := len(h.Values)
	if n == 0 {
		return 0
	}
	hours := int(math.Floor(t.Sub(h.Origin).Hours()))
	idx := hours % n
	if idx < 0 {
		idx += n
	}
	return h.Values[idx]
}

// OpeningHours is a half-open [Open, Close) hour range within one day.
// Close may be 24. When Open > Close the range wraps past midnight.
type OpeningHours struct {
	Open  int
	Close int
}

func (o OpeningHours) contains(hour int) bool {
	if o.Open <= o.Close {
		return hour >= o.Open && hour < o.Close
	}
	return hour >= o.Open || hour < o.Close
}

// WeeklySchedule is a step function: Capacity while open, zero otherwise.
// Days missing from Hours are closed all day.
type WeeklySchedule struct {
	Capacity float64
	Hours    map[time.Weekday]OpeningHours
}

// At implements Curve.
func (w WeeklySchedule) At(t time.Time) float64 {
	oh, ok := w.Hours[t.Weekday()]
	if !ok || !oh.contains(t.Hour()) {
		return 0
	}
	return w.Capacity
}

// Scaled multiplies another curve by a constant factor.
type Scaled struct {
	Base   Curve
	Factor float64
}

// At implements Curve.
func (s Scaled) At(t time.Time) float64 {
	return s.Base.At(t) * s.Factor
}

// Jittered modulates a base curve with smooth simplex noise over time, so
// neighbouring hours vary together. Amplitude 0.2 means ±20%.
type Jittered struct {
	Base      Curve
	Amplitude float64
	Frequency float64 // noise cycles per hour
	noise     opensimplex.Noise
}

// NewJittered creates a noise-modulated curve. The same seed always yields
// the same modulation.
func NewJittered(base Curve, amplitude float64, seed int64) *Jittered {
	return &Jittered{
		Base:      base,
		Amplitude: clamp(amplitude, 0, 1),
		Frequency: 0.25,
		noise:     opensimplex.NewNormalized(seed),
	}
}

// At implements Curve.
func (j *Jittered) At(t time.Time) float64 {
	base := j.Base.At(t)
	if base <= 0 {
		return 0
	}
	hours := float64(t.Unix()) / 3600
	n := j.noise.Eval2(hours*j.Frequency, 0) // [0, 1)
	return clamp(base*(1+j.Amplitude*(2*n-1)), 0, math.Inf(1))
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
