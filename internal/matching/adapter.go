package matching

import (
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

// ErrNoAdaptationSignal means the history held nothing to learn from; the
// current profile stays active.
var ErrNoAdaptationSignal = errors.New("no adaptation signal in feedback history")

// AdapterConfig tunes one adaptation cycle.
type AdapterConfig struct {
	// Step is the largest change a single cycle applies to one weight.
	Step float64
	// Floor and Ceiling bound every weight after renormalization.
	Floor   float64
	Ceiling float64
	// PositiveRating is the lowest rating treated as a good outcome.
	PositiveRating int
	// MinSignal is the smallest mean score gap that moves a weight.
	MinSignal float64
}

// DefaultAdapterConfig matches the shipped configuration defaults.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{Step: 0.02, Floor: 0.05, Ceiling: 0.5, PositiveRating: 4, MinSignal: 0.01}
}

// Adapter computes successor weight profiles from feedback. It never
// publishes; the scheduler does.
type Adapter struct {
	cfg AdapterConfig
	now func() time.Time
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	return &Adapter{cfg: cfg, now: time.Now}
}

// Adapt moves each weight one step toward the sub-scores on which positively
// rated selections beat the other shown results, then projects the weights
// back onto the simplex within [Floor, Ceiling]. It returns the unpublished
// successor of current.
//
// Records without a selection, below PositiveRating, or without chosen
// scores carry no signal and are skipped. A record that fails validation
// aborts the cycle with an AdaptationError.
func (a *Adapter) Adapt(history []models.FeedbackRecord, current *models.WeightProfile) (*models.WeightProfile, error) {
	if current == nil {
		return nil, apperrors.NewAdaptationError("no active profile", nil)
	}

	var positives int
	gap := make(map[models.SubScoreName]float64, len(models.SubScoreNames))
	for i := range history {
		r := &history[i]
		if err := r.Validate(); err != nil {
			return nil, apperrors.NewAdaptationError(fmt.Sprintf("record %q", r.ID), err)
		}
		if !r.HasSelection() || r.Rating == nil || *r.Rating < a.cfg.PositiveRating {
			continue
		}
		// Callers may drop the breakdown of shown results; such a selection
		// says nothing about which sub-score helped.
		if len(r.ChosenScores) == 0 {
			continue
		}
		for _, name := range models.SubScoreNames {
			chosen, ok := r.ChosenScores[name]
			if !ok {
				continue
			}
			baseline, ok := r.BaselineScores[name]
			if !ok {
				baseline = current.NeutralValue(name)
			}
			gap[name] += chosen - baseline
		}
		positives++
	}
	if positives == 0 {
		return nil, ErrNoAdaptationSignal
	}

	weights := current.CopyWeights()
	var moved bool
	for _, name := range models.SubScoreNames {
		mean := gap[name] / float64(positives)
		switch {
		case mean > a.cfg.MinSignal:
			weights[name] += a.cfg.Step
			moved = true
		case mean < -a.cfg.MinSignal:
			weights[name] -= a.cfg.Step
			moved = true
		}
	}
	if !moved {
		return nil, ErrNoAdaptationSignal
	}

	next := &models.WeightProfile{
		Version:       current.Version + 1,
		EffectiveFrom: a.now().UTC(),
		Weights:       redistribute(weights, a.cfg.Floor, a.cfg.Ceiling),
		Neutral:       current.CopyNeutral(),
		Source:        "adaptation",
	}
	if err := next.Validate(); err != nil {
		return nil, apperrors.NewAdaptationError("adapted profile is invalid", err)
	}
	return next, nil
}

// redistribute renormalizes weights to sum to 1 with every weight inside
// [floor, ceiling]. It finds the scale factor l for which the clamped weights
// clamp(l*w) sum to 1; the sum is monotone in l, so bisection converges.
func redistribute(in map[models.SubScoreName]float64, floor, ceiling float64) map[models.SubScoreName]float64 {
	base := make(map[models.SubScoreName]float64, len(models.SubScoreNames))
	var total float64
	for _, name := range models.SubScoreNames {
		base[name] = math.Max(0, in[name])
		total += base[name]
	}
	if total == 0 {
		for _, name := range models.SubScoreNames {
			base[name] = 1
		}
	}

	clamped := func(scale float64) (map[models.SubScoreName]float64, float64) {
		out := make(map[models.SubScoreName]float64, len(base))
		var sum float64
		for _, name := range models.SubScoreNames {
			v := math.Min(ceiling, math.Max(floor, scale*base[name]))
			out[name] = v
			sum += v
		}
		return out, sum
	}

	lo, hi := 0.0, 1.0
	for i := 0; i < 64; i++ {
		if _, sum := clamped(hi); sum >= 1 {
			break
		}
		hi *= 2
	}
	if _, sum := clamped(hi); sum < 1 {
		// Zero weights cannot grow past the floor; start from uniform instead.
		for _, name := range models.SubScoreNames {
			base[name] = 1
		}
		lo, hi = 0, 1/(floor+1e-12)
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if _, sum := clamped(mid); sum < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	out, _ := clamped(hi)
	return out
}
