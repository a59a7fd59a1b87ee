package matching

import (
	"math"
	"sort"

	"carejoa-matching/internal/models"
)

// Scored is a candidate with its composite score and breakdown.
type Scored struct {
	Candidate
	Score     int
	Breakdown []models.SubScore
}

// Score computes the composite 0..100 score. Every sub-score falls back to
// the profile's neutral value when its inputs are missing.
func Score(q models.MatchQuery, c Candidate, p *models.WeightProfile, collaborative float64) (int, []models.SubScore) {
	raw := map[models.SubScoreName]float64{
		models.SubScoreDistance:       distanceScore(q, c, p),
		models.SubScoreRating:         ratingScore(c.Facility, p),
		models.SubScorePrice:          priceScore(q, c.Facility, p),
		models.SubScoreSpecialtyMatch: specialtyScore(q, c),
		models.SubScoreCollaborative:  clamp01(collaborative),
	}

	breakdown := make([]models.SubScore, 0, len(models.SubScoreNames))
	var total float64
	for _, name := range models.SubScoreNames {
		s := models.SubScore{Name: name, Raw: raw[name], Weight: p.Weight(name)}
		total += s.Contribution()
		breakdown = append(breakdown, s)
	}

	composite := int(math.Round(100 * total))
	if composite < 0 {
		composite = 0
	} else if composite > 100 {
		composite = 100
	}
	return composite, breakdown
}

func distanceScore(q models.MatchQuery, c Candidate, p *models.WeightProfile) float64 {
	if !c.DistanceKnown || q.MaxDistanceKm <= 0 {
		return p.NeutralValue(models.SubScoreDistance)
	}
	return 1 - math.Min(1, c.DistanceKm/q.MaxDistanceKm)
}

func ratingScore(f *models.Facility, p *models.WeightProfile) float64 {
	if f.Rating == nil || f.ReviewCount < 1 {
		return p.NeutralValue(models.SubScoreRating)
	}
	return clamp01(*f.Rating / 5)
}

// priceScore is 1 up to the budget midpoint and decays linearly to 0 at
// 1.5 times the budget max.
func priceScore(q models.MatchQuery, f *models.Facility, p *models.WeightProfile) float64 {
	lo, hi, hasMax := q.Budget.Bounds()
	if !hasMax || f.MonthlyCost == nil {
		return p.NeutralValue(models.SubScorePrice)
	}
	cost := float64(*f.MonthlyCost)
	mid := float64(lo+hi) / 2
	zeroAt := 1.5 * float64(hi)
	if cost <= mid {
		return 1
	}
	if cost >= zeroAt || zeroAt <= mid {
		return 0
	}
	return clamp01(1 - (cost-mid)/(zeroAt-mid))
}

func specialtyScore(q models.MatchQuery, c Candidate) float64 {
	requested := q.RequirementCount()
	if requested == 0 {
		return 1
	}
	return float64(requested-len(c.Missing)) / float64(requested)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// SortScored orders by composite score descending, then representative
// first, known distance first, higher rating, and facility id ascending.
func SortScored(items []Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
}

func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Facility.IsRepresentative != b.Facility.IsRepresentative {
		return a.Facility.IsRepresentative
	}
	if a.DistanceKnown != b.DistanceKnown {
		return a.DistanceKnown
	}
	ra, rb := rawRating(a.Facility), rawRating(b.Facility)
	if ra != rb {
		return ra > rb
	}
	return a.Facility.ID < b.Facility.ID
}

// rawRating treats an unrated facility as below any published rating.
func rawRating(f *models.Facility) float64 {
	if f.Rating == nil {
		return -1
	}
	return *f.Rating
}
