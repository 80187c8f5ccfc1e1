package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned for out-of-range model parameters.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Epsilon guards the crowding ratio against zero capacity.
const Epsilon = 1e-9

// Params are the choice-model parameters shared by the leave and enter steps.
type Params struct {
	// Alpha trades slack-driven exploration (1) against habit (0).
	Alpha float64
	// OccupancyWeight penalizes relatively crowded POIs.
	OccupancyWeight float64
	// TendencyDecay multiplies every habit strength once per hour.
	TendencyDecay float64
	// LeaveProbability is the hourly chance an occupant departs an open POI.
	LeaveProbability float64
	// Temperature divides scores before the softmax. 1 leaves them as is.
	Temperature float64
}

// DefaultParams returns the calibrated model constants.
func DefaultParams() Params {
	return Params{
		Alpha:            0.16557695315916893,
		OccupancyWeight:  1.5711109677337263,
		TendencyDecay:    0.3460627088857086,
		LeaveProbability: 0.3,
		Temperature:      1,
	}
}

// Validate checks every parameter range.
func (p Params) Validate() error {
	switch {
	case !inRange(p.Alpha, 0, 1):
		return fmt.Errorf("%w: alpha %g not in [0,1]", ErrInvalidParams, p.Alpha)
	case math.IsNaN(p.OccupancyWeight) || p.OccupancyWeight < 0:
		return fmt.Errorf("%w: occupancy_weight %g is negative", ErrInvalidParams, p.OccupancyWeight)
	case math.IsNaN(p.TendencyDecay) || p.TendencyDecay <= 0 || p.TendencyDecay > 1:
		return fmt.Errorf("%w: tendency_decay %g not in (0,1]", ErrInvalidParams, p.TendencyDecay)
	case !inRange(p.LeaveProbability, 0, 1):
		return fmt.Errorf("%w: leave_probability %g not in [0,1]", ErrInvalidParams, p.LeaveProbability)
	case math.IsNaN(p.Temperature) || p.Temperature <= 0:
		return fmt.Errorf("%w: temperature %g must be positive", ErrInvalidParams, p.Temperature)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
