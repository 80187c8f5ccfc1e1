// Admissions: which POI, if any, each idle person enters this hour.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/footfall/internal/entropy"
	"github.com/talgya/footfall/internal/logging"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// EnterResult counts the outcomes of one enter step.
type EnterResult struct {
	Admitted int
	Idle     int // no POI had slack left
}

// EnterEngine places idle persons into POIs with remaining slack.
//
// For each candidate POI i and person p:
//
//	score = alpha*slack(i) - occupancyWeight*crowding(i) + (1-alpha)*tendency[p][i]
//
// A softmax over the scores gives the choice distribution. Persons are
// handled in ascending id order and slack is re-read after every admission,
// so the last free slot can never be handed out twice.
type EnterEngine struct {
	Registry *poi.Registry
	People   *population.Store
	Params   Params
	Rand     entropy.Source

	// scratch buffers reused across persons
	cand   []int
	scores []float64
}

// Step runs admissions for hour t.
func (e *EnterEngine) Step(t time.Time) (EnterResult, error) {
	var res EnterResult
	pois := e.Registry.POIs()
	caps := e.Registry.Capacities(t)
	trace := slog.Default().Enabled(context.Background(), logging.LevelTrace)

	for _, p := range e.People.People() {
		if !p.Idle() {
			continue
		}

		e.score(p, pois, caps)
		if len(e.cand) == 0 {
			res.Idle++
			continue
		}

		u := e.Rand.Float64(entropy.StreamEnter, int(p.ID), t)
		chosen := pois[e.cand[sample(softmax(e.scores, e.Params.Temperature), u)]].ID

		if err := e.People.SetLocation(p.ID, chosen); err != nil {
			return res, err
		}
		if err := e.Registry.Admit(chosen); err != nil {
			return res, fmt.Errorf("person %d entering: %w", p.ID, err)
		}
		if _, err := e.People.ReinforceTendency(p.ID, chosen); err != nil {
			return res, err
		}
		res.Admitted++

		if trace {
			slog.Log(context.Background(), logging.LevelTrace, "admitted",
				"person", p.ID,
				"poi", chosen,
				"candidates", len(e.cand),
				"tendency", fmt.Sprintf("%.3f", p.TendencyFor(chosen)),
			)
		}
	}
	return res, nil
}

// score fills e.cand with indexes of POIs that have slack and e.scores with
// their scores for person p.
func (e *EnterEngine) score(p *population.Person, pois []*poi.POI, caps []float64) {
	e.cand = e.cand[:0]
	e.scores = e.scores[:0]
	alpha := e.Params.Alpha

	for i, pt := range pois {
		occ := float64(e.Registry.OccupancyOf(pt.ID))
		slack := caps[i] - occ
		if slack <= 0 {
			continue
		}
		crowding := occ / math.Max(caps[i], Epsilon)
		habit := p.TendencyFor(pt.ID)

		e.cand = append(e.cand, i)
		e.scores = append(e.scores, alpha*slack-e.Params.OccupancyWeight*crowding+(1-alpha)*habit)
	}
}

// softmax converts scores in place into probabilities. The maximum is
// subtracted first so large slack values cannot overflow.
func softmax(scores []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	sum := 0.0
	for i, s := range scores {
		scores[i] = math.Exp((s - max) / temperature)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}

// sample picks an index from probs by inverse CDF with u in [0, 1).
func sample(probs []float64, u float64) int {
	acc := 0.0
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}
