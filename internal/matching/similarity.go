package matching

import (
	"sort"
	"time"

	"carejoa-matching/internal/models"
)

type SimilarityConfig struct {
	WindowSize       int
	WindowAge        time.Duration
	MinSamples       int
	OverlapThreshold float64
}

func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		WindowSize:       500,
		WindowAge:        90 * 24 * time.Hour,
		MinSamples:       3,
		OverlapThreshold: 0.5,
	}
}

// SimilarityEstimator scores candidates by how often users with similar
// past queries chose them.
type SimilarityEstimator struct {
	cfg SimilarityConfig
	now func() time.Time
}

func NewSimilarityEstimator(cfg SimilarityConfig) *SimilarityEstimator {
	return &SimilarityEstimator{cfg: cfg, now: time.Now}
}

// Window keeps the records that are both among the newest WindowSize and
// younger than WindowAge. The input is not modified.
func (s *SimilarityEstimator) Window(feedback []models.FeedbackRecord) []models.FeedbackRecord {
	cutoff := s.now().Add(-s.cfg.WindowAge)
	recent := make([]models.FeedbackRecord, 0, len(feedback))
	for _, r := range feedback {
		if s.cfg.WindowAge > 0 && r.Timestamp.Before(cutoff) {
			continue
		}
		recent = append(recent, r)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if s.cfg.WindowSize > 0 && len(recent) > s.cfg.WindowSize {
		recent = recent[:s.cfg.WindowSize]
	}
	return recent
}

// SimilarityIndex is the per-query view of the feedback window.
type SimilarityIndex struct {
	samples int
	chosen  map[string]float64
	neutral float64
	min     int
}

// Index selects the feedback records similar to q and tallies their
// rating-weighted selections. A nil or empty window is valid.
func (s *SimilarityEstimator) Index(q models.MatchQuery, window []models.FeedbackRecord, neutral float64) *SimilarityIndex {
	idx := &SimilarityIndex{chosen: make(map[string]float64), neutral: neutral, min: s.cfg.MinSamples}
	sig := q.Signature()
	want := sig.Requirements()

	for i := range window {
		r := &window[i]
		if !s.similar(sig, want, r.Signature) {
			continue
		}
		idx.samples++
		if r.HasSelection() {
			idx.chosen[*r.ChosenFacilityID] += outcomeWeight(r)
		}
	}
	return idx
}

// Similarity returns the collaborative sub-score for one facility.
func (idx *SimilarityIndex) Similarity(facilityID string) float64 {
	if idx == nil {
		return models.DefaultNeutralValue
	}
	if idx.samples == 0 || idx.samples < idx.min {
		return idx.neutral
	}
	return clamp01(idx.chosen[facilityID] / float64(idx.samples))
}

func (idx *SimilarityIndex) Samples() int {
	if idx == nil {
		return 0
	}
	return idx.samples
}

// Similarity is the single-candidate form of Index(...).Similarity.
func (s *SimilarityEstimator) Similarity(q models.MatchQuery, c Candidate, window []models.FeedbackRecord, neutral float64) float64 {
	return s.Index(q, window, neutral).Similarity(c.Facility.ID)
}

func (s *SimilarityEstimator) similar(sig models.QuerySignature, want []string, other models.QuerySignature) bool {
	if other.FacilityType != sig.FacilityType || other.Sido != sig.Sido || other.Sigungu != sig.Sigungu {
		return false
	}
	return overlap(want, other.Requirements()) >= s.cfg.OverlapThreshold
}

// unratedOutcome weighs an unrated selection like a three-star one, so it
// never outranks a selection the user rated well.
const unratedOutcome = 3.0 / 5

// outcomeWeight scales a selection by its rating.
func outcomeWeight(r *models.FeedbackRecord) float64 {
	if r.Rating == nil {
		return unratedOutcome
	}
	return float64(*r.Rating) / 5
}

// overlap is the Jaccard index of two requirement sets. Two empty sets are
// identical.
func overlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	var inter int
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := set[v]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
