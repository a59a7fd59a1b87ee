package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

const searchBody = `{
  "took": 3,
  "hits": {
    "total": {"value": 2, "relation": "eq"},
    "hits": [
      {"_id": "21", "_source": {
        "id": "21", "name": "해운대 요양병원", "facility_type": "요양병원",
        "sido": "부산광역시", "sigungu": "해운대구",
        "location": {"lat": 35.1631, "lon": 129.1636},
        "rating": 4.1, "review_count": 8,
        "specialties": ["재활"], "monthly_cost": 2100000,
        "is_representative": true
      }},
      {"_id": "22", "_source": {
        "name": "좌표 없는 병원", "facility_type": "요양병원",
        "sido": "부산광역시", "sigungu": "해운대구", "available": false
      }}
    ]
  }
}`

func newTestES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchCatalog_GetCandidates(t *testing.T) {
	var gotPath string
	var gotQuery map[string]interface{}

	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotQuery)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	})

	catalog := NewElasticsearchCatalog(client, "facilities", 0)
	got, err := catalog.GetCandidates(context.Background(), models.FacilityTypeNursingHospital, "부산광역시", "해운대구")
	require.NoError(t, err)

	assert.Equal(t, "/facilities/_search", gotPath)
	filters := gotQuery["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Len(t, filters, 3)

	require.Len(t, got, 2)
	assert.Equal(t, "21", got[0].ID)
	require.NotNil(t, got[0].Coordinate)
	assert.Equal(t, 129.1636, got[0].Coordinate.Lng)
	assert.True(t, got[0].IsRepresentative)
	assert.True(t, got[0].Available)

	assert.Equal(t, "22", got[1].ID)
	assert.Nil(t, got[1].Coordinate)
	assert.False(t, got[1].Available)
}

func TestElasticsearchCatalog_WalksEveryPage(t *testing.T) {
	pages := []string{
		`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": [
			{"_id": "31", "_source": {"id": "31", "facility_type": "요양원", "sido": "대전광역시"}, "sort": ["31"]},
			{"_id": "32", "_source": {"id": "32", "facility_type": "요양원", "sido": "대전광역시"}, "sort": ["32"]}
		]}}`,
		`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": [
			{"_id": "33", "_source": {"id": "33", "facility_type": "요양원", "sido": "대전광역시"}, "sort": ["33"]}
		]}}`,
	}
	var bodies []map[string]interface{}

	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		var q map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &q)
		bodies = append(bodies, q)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if len(bodies) > len(pages) {
			_, _ = w.Write([]byte(`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": []}}`))
			return
		}
		_, _ = w.Write([]byte(pages[len(bodies)-1]))
	})

	got, err := NewElasticsearchCatalog(client, "facilities", 2).
		GetCandidates(context.Background(), models.FacilityTypeNursingHome, "대전광역시", "")
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"31", "32", "33"}, []string{got[0].ID, got[1].ID, got[2].ID})

	require.Len(t, bodies, 2)
	assert.NotContains(t, bodies[0], "search_after")
	assert.Equal(t, []interface{}{"32"}, bodies[1]["search_after"])
}

func TestElasticsearchCatalog_FullPageWithoutSortValues(t *testing.T) {
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits": {"total": {"value": 5, "relation": "eq"}, "hits": [
			{"_id": "41", "_source": {"id": "41"}}
		]}}`))
	})

	_, err := NewElasticsearchCatalog(client, "facilities", 1).
		GetCandidates(context.Background(), models.FacilityTypeNursingHome, "대전광역시", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchQueryFailed, apperrors.ToStandardError(err).Code)
}

func TestElasticsearchCatalog_Error(t *testing.T) {
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})

	_, err := NewElasticsearchCatalog(client, "missing", 50).
		GetCandidates(context.Background(), models.FacilityTypeNursingHome, "서울특별시", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchQueryFailed, apperrors.ToStandardError(err).Code)
}

func TestBuildCandidateQuery_SkipsEmptyDistrict(t *testing.T) {
	q := buildCandidateQuery(models.FacilityTypeNursingHome, "서울특별시", "")
	filters := q["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Len(t, filters, 2)
}
