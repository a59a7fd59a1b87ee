package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carejoa-matching/internal/models"
)

func TestSimilarityIndex(t *testing.T) {
	est := NewSimilarityEstimator(DefaultSimilarityConfig())
	q := gangnamQuery()
	now := time.Now()

	t.Run("empty window is neutral", func(t *testing.T) {
		idx := est.Index(q, nil, 0.5)
		assert.Equal(t, 0.5, idx.Similarity("a"))
		assert.Zero(t, idx.Samples())
	})

	t.Run("below minimum samples is neutral", func(t *testing.T) {
		window := []models.FeedbackRecord{
			feedbackFor(q, "a", nil, now),
			feedbackFor(q, "a", nil, now),
		}
		assert.Equal(t, 0.5, est.Index(q, window, 0.5).Similarity("a"))
	})

	t.Run("rating weighted share of similar queries", func(t *testing.T) {
		window := []models.FeedbackRecord{
			feedbackFor(q, "a", ptrInt(5), now),
			feedbackFor(q, "a", ptrInt(3), now),
			feedbackFor(q, "b", nil, now),
			feedbackFor(q, "", nil, now),
		}
		idx := est.Index(q, window, 0.5)
		assert.Equal(t, 4, idx.Samples())
		assert.InDelta(t, (1.0+0.6)/4, idx.Similarity("a"), 1e-9)
		assert.InDelta(t, 0.6/4, idx.Similarity("b"), 1e-9)
		assert.Zero(t, idx.Similarity("never-chosen"))
	})

	t.Run("unrated selection sits below a four star one", func(t *testing.T) {
		window := []models.FeedbackRecord{
			feedbackFor(q, "rated", ptrInt(4), now),
			feedbackFor(q, "unrated", nil, now),
			feedbackFor(q, "poor", ptrInt(1), now),
		}
		idx := est.Index(q, window, 0.5)
		require.Equal(t, 3, idx.Samples())
		assert.Greater(t, idx.Similarity("rated"), idx.Similarity("unrated"))
		assert.Greater(t, idx.Similarity("unrated"), idx.Similarity("poor"))
	})

	t.Run("dissimilar queries are ignored", func(t *testing.T) {
		other := gangnamQuery()
		other.Region.Sigungu = "서초구"
		specialized := gangnamQuery()
		specialized.Specialties = []string{"치매", "재활"}

		window := []models.FeedbackRecord{
			feedbackFor(other, "a", nil, now),
			feedbackFor(other, "a", nil, now),
			feedbackFor(specialized, "a", nil, now),
			feedbackFor(q, "a", nil, now),
		}
		idx := est.Index(q, window, 0.5)
		assert.Equal(t, 1, idx.Samples())
		assert.Equal(t, 0.5, idx.Similarity("a"))
	})
}

func TestOverlap(t *testing.T) {
	assert.Equal(t, 1.0, overlap(nil, nil))
	assert.Equal(t, 0.0, overlap([]string{"specialty:치매"}, nil))
	assert.InDelta(t, 1.0/3.0, overlap([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 1.0, overlap([]string{"a"}, []string{"a", "a"}))
}

func TestSimilarityEstimator_Window(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	est := NewSimilarityEstimator(SimilarityConfig{WindowSize: 2, WindowAge: 30 * 24 * time.Hour, MinSamples: 1})
	est.now = func() time.Time { return now }
	q := gangnamQuery()

	records := []models.FeedbackRecord{
		feedbackFor(q, "old", nil, now.Add(-60*24*time.Hour)),
		feedbackFor(q, "mid", nil, now.Add(-2*time.Hour)),
		feedbackFor(q, "new", nil, now.Add(-1*time.Hour)),
		feedbackFor(q, "older", nil, now.Add(-3*time.Hour)),
	}
	window := est.Window(records)

	if assert.Len(t, window, 2) {
		assert.Equal(t, "new", *window[0].ChosenFacilityID)
		assert.Equal(t, "mid", *window[1].ChosenFacilityID)
	}
	assert.Equal(t, "old", *records[0].ChosenFacilityID)
}
