package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/models"
)

type stubCatalog struct {
	facilities []models.Facility
	err        error
}

func (s *stubCatalog) GetCandidates(_ context.Context, _ models.FacilityType, _, _ string) ([]models.Facility, error) {
	return s.facilities, s.err
}

type stubFeedback struct {
	mu       sync.Mutex
	recent   []models.FeedbackRecord
	err      error
	appended []*models.FeedbackRecord
}

func (s *stubFeedback) GetRecentFeedback(_ context.Context, _ models.FacilityType, _, _ string, _ int) ([]models.FeedbackRecord, error) {
	return s.recent, s.err
}

func (s *stubFeedback) AppendFeedback(_ context.Context, rec *models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, rec)
	return nil
}

func newTestEngine(t *testing.T, catalog CatalogSource, fb *stubFeedback) (*Engine, *ProfileStore) {
	store, err := NewProfileStore(defaultProfile(), nil)
	require.NoError(t, err)
	return NewEngine(DefaultEngineConfig(), catalog, store,
		WithFeedback(fb, fb),
		WithLogger(logger.NewTestLogger(t)),
	), store
}

func gangnamCatalog() []models.Facility {
	near := models.Coordinate{Lat: 37.4979, Lng: 127.0276}
	return []models.Facility{
		facility("gn-1", "강남구", &gangnam),
		facility("gn-2", "강남구", &near),
		facility("sc-1", "서초구", &seocho),
	}
}

func TestEngine_Match_GangnamScenario(t *testing.T) {
	e, _ := newTestEngine(t, &stubCatalog{facilities: gangnamCatalog()}, &stubFeedback{})

	resp, err := e.Match(context.Background(), RawCriteria{
		FacilityType: "요양원", Sido: "서울특별시", Sigungu: "강남구", MaxDistance: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.TotalScanned)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		require.NotNil(t, r.DistanceKm)
	}
	assert.Equal(t, "gn-1", resp.Results[0].FacilityID)
	assert.Equal(t, 0.0, *resp.Results[0].DistanceKm)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
	assert.Equal(t, int64(1), resp.ProfileVersion)
	assert.Equal(t, 10.0, resp.AppliedFilters.MaxDistanceKm)
	assert.Equal(t, 2, resp.AppliedFilters.Stages.AfterBudget)
	assert.Len(t, resp.Fingerprint, 16)
	assert.NotEmpty(t, resp.Results[0].Reasons)
	assert.LessOrEqual(t, len(resp.Results[0].Reasons), 4)
}

func TestEngine_Match_Deterministic(t *testing.T) {
	catalog := gangnamCatalog()
	for i := 0; i < 6; i++ {
		f := facility(fmt.Sprintf("gn-x%d", i), "강남구", nil)
		catalog = append(catalog, f)
	}
	fb := &stubFeedback{recent: []models.FeedbackRecord{
		feedbackFor(gangnamQuery(), "gn-2", ptrInt(5), time.Now()),
		feedbackFor(gangnamQuery(), "gn-2", ptrInt(4), time.Now()),
		feedbackFor(gangnamQuery(), "gn-x3", nil, time.Now()),
	}}
	e, _ := newTestEngine(t, &stubCatalog{facilities: catalog}, fb)
	raw := RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구", MaxDistance: "10"}

	first, err := e.Match(context.Background(), raw)
	require.NoError(t, err)
	second, err := e.Match(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	// unknown-distance facilities tie and fall back to id order
	var unknown []string
	for _, r := range first.Results {
		if r.DistanceKm == nil && r.FacilityID != "gn-x3" {
			unknown = append(unknown, r.FacilityID)
		}
	}
	assert.Equal(t, []string{"gn-x0", "gn-x1", "gn-x2", "gn-x4", "gn-x5"}, unknown)
}

func TestEngine_Match_ResultCap(t *testing.T) {
	var catalog []models.Facility
	for i := 0; i < 25; i++ {
		catalog = append(catalog, facility(fmt.Sprintf("f%02d", i), "강남구", &gangnam))
	}
	e, _ := newTestEngine(t, &stubCatalog{facilities: catalog}, &stubFeedback{})

	resp, err := e.Match(context.Background(), RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 10)
	assert.Equal(t, 25, resp.TotalScanned)
	assert.Equal(t, "f00", resp.Results[0].FacilityID)
}

func TestEngine_Match_BudgetExclusion(t *testing.T) {
	catalog := gangnamCatalog()
	catalog[0].MonthlyCost = ptrI64(3000000)
	catalog[1].MonthlyCost = nil
	e, _ := newTestEngine(t, &stubCatalog{facilities: catalog}, &stubFeedback{})

	resp, err := e.Match(context.Background(), RawCriteria{
		FacilityType: "요양원", Sido: "서울특별시", Sigungu: "강남구", BudgetMax: 2000000,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "gn-2", resp.Results[0].FacilityID)
	require.NotNil(t, resp.AppliedFilters.BudgetMax)
	assert.Equal(t, int64(2000000), *resp.AppliedFilters.BudgetMax)
}

func TestEngine_Match_Errors(t *testing.T) {
	tests := []struct {
		name    string
		catalog *stubCatalog
		fb      *stubFeedback
		raw     RawCriteria
		check   func(t *testing.T, resp *MatchResponse, err error)
	}{
		{
			name:    "validation",
			catalog: &stubCatalog{},
			fb:      &stubFeedback{},
			raw:     RawCriteria{Sido: "서울"},
			check: func(t *testing.T, _ *MatchResponse, err error) {
				assert.True(t, apperrors.IsValidation(err))
			},
		},
		{
			name:    "catalog down",
			catalog: &stubCatalog{err: errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")},
			fb:      &stubFeedback{},
			raw:     RawCriteria{Sido: "서울", FacilityType: "요양원"},
			check: func(t *testing.T, _ *MatchResponse, err error) {
				assert.True(t, apperrors.IsDataUnavailable(err))
			},
		},
		{
			name:    "feedback down",
			catalog: &stubCatalog{facilities: gangnamCatalog()},
			fb:      &stubFeedback{err: errors.New("timeout")},
			raw:     RawCriteria{Sido: "서울", FacilityType: "요양원"},
			check: func(t *testing.T, _ *MatchResponse, err error) {
				assert.True(t, apperrors.IsDataUnavailable(err))
			},
		},
		{
			name:    "empty result is not an error",
			catalog: &stubCatalog{facilities: gangnamCatalog()},
			fb:      &stubFeedback{err: errors.New("never reached")},
			raw:     RawCriteria{Sido: "서울", FacilityType: "재가복지센터"},
			check: func(t *testing.T, resp *MatchResponse, err error) {
				require.NoError(t, err)
				assert.NotNil(t, resp.Results)
				assert.Empty(t, resp.Results)
				assert.Equal(t, 3, resp.TotalScanned)
				assert.True(t, resp.AppliedFilters.Stages.ShortCircuited)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, tt.catalog, tt.fb)
			resp, err := e.Match(context.Background(), tt.raw)
			tt.check(t, resp, err)
		})
	}
}

func TestEngine_Match_UsesProfileAtCallStart(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, &stubCatalog{facilities: gangnamCatalog()}, &stubFeedback{})

	before, err := e.Match(ctx, RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구"})
	require.NoError(t, err)

	_, err = store.Publish(ctx, shifted(store.Active()))
	require.NoError(t, err)

	after, err := e.Match(ctx, RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.ProfileVersion)
	assert.Equal(t, int64(2), after.ProfileVersion)
	assert.InDelta(t, 0.35, after.Results[0].Breakdown[0].Weight, 1e-9)
}

func TestEngine_RecordFeedback(t *testing.T) {
	ctx := context.Background()
	fb := &stubFeedback{}
	e, _ := newTestEngine(t, &stubCatalog{facilities: gangnamCatalog()}, fb)

	resp, err := e.Match(ctx, RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구"})
	require.NoError(t, err)
	q, err := e.Normalize(RawCriteria{FacilityType: "요양원", Sido: "서울", Sigungu: "강남구"})
	require.NoError(t, err)

	rec := BuildFeedbackRecord(q, resp.Results, ptrS("gn-2"), ptrInt(5), resp.ProfileVersion, time.Now())
	assert.Equal(t, resp.Fingerprint, rec.Fingerprint)
	require.NotNil(t, rec.ChosenScores)
	require.NotNil(t, rec.BaselineScores)
	assert.Greater(t, rec.BaselineScores[models.SubScoreDistance], rec.ChosenScores[models.SubScoreDistance])

	require.NoError(t, e.RecordFeedback(ctx, &rec))
	require.Len(t, fb.appended, 1)
	assert.NotEmpty(t, fb.appended[0].ID)

	bad := rec
	bad.Rating = ptrInt(0)
	err = e.RecordFeedback(ctx, &bad)
	assert.Equal(t, apperrors.ErrCodeMalformedFeedback, apperrors.ToStandardError(err).Code)

	assert.Error(t, e.RecordFeedback(ctx, nil))

	fb.err = errors.New("pq: connection refused")
	noSelection := BuildFeedbackRecord(q, resp.Results, nil, nil, resp.ProfileVersion, time.Now())
	assert.True(t, apperrors.IsDataUnavailable(e.RecordFeedback(ctx, &noSelection)))
}

func TestEngine_Rank_Pure(t *testing.T) {
	e, _ := newTestEngine(t, &stubCatalog{}, &stubFeedback{})
	catalog := gangnamCatalog()

	results, report := e.Rank(gangnamQuery(), catalog, defaultProfile(), nil)
	assert.Len(t, results, 2)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, gangnamCatalog(), catalog)
}
