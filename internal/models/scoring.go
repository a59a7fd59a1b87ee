// internal/models/scoring.go
package models

import (
	"fmt"
	"math"
	"time"
)

type SubScoreName string

const (
	SubScoreDistance       SubScoreName = "distance"
	SubScoreRating         SubScoreName = "rating"
	SubScorePrice          SubScoreName = "price"
	SubScoreSpecialtyMatch SubScoreName = "specialtyMatch"
	SubScoreCollaborative  SubScoreName = "collaborative"
)

// SubScoreNames is the fixed enum order, used for stable tie ordering.
var SubScoreNames = []SubScoreName{
	SubScoreDistance,
	SubScoreRating,
	SubScorePrice,
	SubScoreSpecialtyMatch,
	SubScoreCollaborative,
}

func (n SubScoreName) Valid() bool {
	return n.Position() >= 0
}

// Position is the index of the name in SubScoreNames, or -1.
func (n SubScoreName) Position() int {
	for i, name := range SubScoreNames {
		if name == n {
			return i
		}
	}
	return -1
}

type SubScore struct {
	Name   SubScoreName `json:"name"`
	Raw    float64      `json:"raw"`
	Weight float64      `json:"weight"`
}

func (s SubScore) Contribution() float64 {
	return s.Raw * s.Weight
}

const (
	DefaultNeutralValue = 0.5
	WeightSumTolerance  = 1e-6
)

// WeightProfile is an immutable, versioned weight set. New versions are
// published instead of mutating an existing profile.
type WeightProfile struct {
	Version       int64                    `json:"version"`
	EffectiveFrom time.Time                `json:"effectiveFrom"`
	Weights       map[SubScoreName]float64 `json:"weights"`
	Neutral       map[SubScoreName]float64 `json:"neutral,omitempty"`
	Source        string                   `json:"source,omitempty"`
}

func (p *WeightProfile) Weight(name SubScoreName) float64 {
	return p.Weights[name]
}

// NeutralValue returns the configured cold-start value for a sub-score.
func (p *WeightProfile) NeutralValue(name SubScoreName) float64 {
	if v, ok := p.Neutral[name]; ok {
		return v
	}
	return DefaultNeutralValue
}

// Validate checks that every sub-score has a non-negative weight and that
// the weights sum to 1.
func (p *WeightProfile) Validate() error {
	var sum float64
	for _, name := range SubScoreNames {
		w, ok := p.Weights[name]
		if !ok {
			return fmt.Errorf("missing weight for %s", name)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("weight for %s must be non-negative, got %v", name, w)
		}
		sum += w
	}
	if len(p.Weights) != len(SubScoreNames) {
		return fmt.Errorf("unexpected weight names: %d given", len(p.Weights))
	}
	if math.Abs(sum-1) > WeightSumTolerance {
		return fmt.Errorf("weights must sum to 1, got %.8f", sum)
	}
	for name, v := range p.Neutral {
		if v < 0 || v > 1 {
			return fmt.Errorf("neutral value for %s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}

// CopyWeights returns a fresh map safe for mutation.
func (p *WeightProfile) CopyWeights() map[SubScoreName]float64 {
	out := make(map[SubScoreName]float64, len(p.Weights))
	for k, v := range p.Weights {
		out[k] = v
	}
	return out
}

func (p *WeightProfile) CopyNeutral() map[SubScoreName]float64 {
	out := make(map[SubScoreName]float64, len(p.Neutral))
	for k, v := range p.Neutral {
		out[k] = v
	}
	return out
}

type MatchResult struct {
	FacilityID       string     `json:"facilityId"`
	Name             string     `json:"name"`
	Score            int        `json:"score"`
	Reasons          []string   `json:"reasons"`
	DistanceKm       *float64   `json:"distanceKm"`
	Phone            string     `json:"phone,omitempty"`
	Address          string     `json:"address,omitempty"`
	IsRepresentative bool       `json:"isRepresentative"`
	Breakdown        []SubScore `json:"breakdown,omitempty"`
}
