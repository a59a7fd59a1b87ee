package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carejoa-matching/internal/models"
)

func TestFilter_GangnamScenario(t *testing.T) {
	near := models.Coordinate{Lat: 37.4979, Lng: 127.0276}
	catalog := []models.Facility{
		facility("a", "강남구", &gangnam),
		facility("b", "강남구", &near),
		facility("c", "서초구", &seocho),
	}

	candidates, report := Filter(gangnamQuery(), catalog)

	require.Len(t, candidates, 2)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.AfterRegion)
	for _, c := range candidates {
		assert.True(t, c.DistanceKnown)
		assert.LessOrEqual(t, c.DistanceKm, 10.0)
	}
}

func TestFilter_Stages(t *testing.T) {
	far := models.Coordinate{Lat: 37.7, Lng: 127.3}

	tests := []struct {
		name    string
		mutate  func(q *models.MatchQuery, catalog []models.Facility) []models.Facility
		wantIDs []string
		check   func(t *testing.T, cands []Candidate, r FilterReport)
	}{
		{
			name: "type mismatch short-circuits",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				q.FacilityType = models.FacilityTypeNursingHospital
				return catalog
			},
			check: func(t *testing.T, cands []Candidate, r FilterReport) {
				assert.True(t, r.ShortCircuited)
				assert.Zero(t, r.AfterDistance)
			},
		},
		{
			name: "district omitted keeps whole province",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				q.Region.Sigungu = ""
				q.MaxDistanceKm = 50
				return catalog
			},
			wantIDs: []string{"a", "b", "c"},
		},
		{
			name: "missing coordinates are kept and flagged",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				catalog[1].Coordinate = nil
				return catalog
			},
			wantIDs: []string{"a", "b"},
			check: func(t *testing.T, cands []Candidate, r FilterReport) {
				assert.False(t, cands[1].DistanceKnown)
				assert.Equal(t, 1, r.UnknownDist)
			},
		},
		{
			name: "distance beyond max drops",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				catalog[1].Coordinate = &far
				return catalog
			},
			wantIDs: []string{"a"},
		},
		{
			name: "budget excludes known cost only",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				q.Budget = &models.BudgetRange{Max: ptrI64(2000000)}
				catalog[0].MonthlyCost = ptrI64(3000000)
				catalog[1].MonthlyCost = nil
				return catalog
			},
			wantIDs: []string{"b"},
		},
		{
			name: "budget lower bound",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				q.Budget = &models.BudgetRange{Min: ptrI64(1000000)}
				catalog[0].MonthlyCost = ptrI64(500000)
				catalog[1].MonthlyCost = ptrI64(1500000)
				return catalog
			},
			wantIDs: []string{"b"},
		},
		{
			name: "missing specialties annotate without dropping",
			mutate: func(q *models.MatchQuery, catalog []models.Facility) []models.Facility {
				q.Specialties = []string{"치매"}
				q.AdmissionTypes = []string{"단기"}
				catalog[0].Specialties = []string{"치매"}
				return catalog
			},
			wantIDs: []string{"a", "b"},
			check: func(t *testing.T, cands []Candidate, r FilterReport) {
				assert.Equal(t, []string{"단기"}, cands[0].Missing)
				assert.Equal(t, []string{"치매", "단기"}, cands[1].Missing)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			near := models.Coordinate{Lat: 37.4979, Lng: 127.0276}
			catalog := []models.Facility{
				facility("a", "강남구", &gangnam),
				facility("b", "강남구", &near),
				facility("c", "서초구", &seocho),
			}
			q := gangnamQuery()
			catalog = tt.mutate(&q, catalog)

			cands, report := Filter(q, catalog)

			ids := make([]string, 0, len(cands))
			for _, c := range cands {
				ids = append(ids, c.Facility.ID)
			}
			if tt.wantIDs != nil {
				assert.Equal(t, tt.wantIDs, ids)
			}
			if tt.check != nil {
				tt.check(t, cands, report)
			}
		})
	}
}

func TestFilter_DoesNotMutateCatalog(t *testing.T) {
	catalog := []models.Facility{facility("b", "강남구", nil), facility("a", "강남구", &gangnam)}
	before := append([]models.Facility(nil), catalog...)

	Filter(gangnamQuery(), catalog)

	assert.Equal(t, before, catalog)
}
