package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

// ElasticsearchCatalog reads facility snapshots from a search index.
type ElasticsearchCatalog struct {
	client   *elasticsearch.Client
	index    string
	pageSize int
}

func NewElasticsearchCatalog(client *elasticsearch.Client, index string, pageSize int) *ElasticsearchCatalog {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &ElasticsearchCatalog{client: client, index: index, pageSize: pageSize}
}

type facilityDoc struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	FacilityType     string   `json:"facility_type"`
	Sido             string   `json:"sido"`
	Sigungu          string   `json:"sigungu"`
	Location         *geoDoc  `json:"location"`
	Phone            string   `json:"phone"`
	Address          string   `json:"address"`
	Rating           *float64 `json:"rating"`
	ReviewCount      int      `json:"review_count"`
	Specialties      []string `json:"specialties"`
	AdmissionTypes   []string `json:"admission_types"`
	MonthlyCost      *int64   `json:"monthly_cost"`
	Available        *bool    `json:"available"`
	IsRepresentative bool     `json:"is_representative"`
}

type geoDoc struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type searchHit struct {
	ID     string        `json:"_id"`
	Source facilityDoc   `json:"_source"`
	Sort   []interface{} `json:"sort"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value    int    `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// buildCandidateQuery filters on the keyword fields only; ranking happens
// in the engine.
func buildCandidateQuery(facilityType models.FacilityType, sido, sigungu string) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"facility_type": string(facilityType)}},
		map[string]interface{}{"term": map[string]interface{}{"sido": sido}},
	}
	if sigungu != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"sigungu": sigungu},
		})
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filterClauses},
		},
		"sort": []map[string]interface{}{{"id": "asc"}},
	}
}

// GetCandidates walks every page of the filter using search_after on the
// id sort, so a region larger than pageSize is returned in full.
func (c *ElasticsearchCatalog) GetCandidates(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) ([]models.Facility, error) {
	var (
		out         []models.Facility
		searchAfter []interface{}
	)
	for {
		query := buildCandidateQuery(facilityType, sido, sigungu)
		if searchAfter != nil {
			query["search_after"] = searchAfter
		}
		page, err := c.searchPage(ctx, query)
		if err != nil {
			return nil, err
		}

		hits := page.Hits.Hits
		if out == nil {
			out = make([]models.Facility, 0, max(len(hits), page.Hits.Total.Value))
		}
		for _, hit := range hits {
			doc := hit.Source
			if doc.ID == "" {
				doc.ID = hit.ID
			}
			out = append(out, doc.toFacility())
		}

		if len(hits) < c.pageSize {
			return out, nil
		}
		if page.Hits.Total.Relation == "eq" && len(out) >= page.Hits.Total.Value {
			return out, nil
		}
		last := hits[len(hits)-1]
		if len(last.Sort) == 0 {
			return nil, apperrors.NewSearchQueryFailedError(c.index,
				fmt.Errorf("page ending at %q has no sort values; cannot continue past %d of %d hits", last.ID, len(out), page.Hits.Total.Value))
		}
		searchAfter = last.Sort
	}
}

func (c *ElasticsearchCatalog) searchPage(ctx context.Context, query map[string]interface{}) (*searchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	size := c.pageSize
	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(c.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError(c.index, fmt.Errorf("search failed: %s", res.Status()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(c.index, fmt.Errorf("decode response: %w", err))
	}
	return &r, nil
}

func (d facilityDoc) toFacility() models.Facility {
	f := models.Facility{
		ID:               d.ID,
		Name:             d.Name,
		Type:             models.FacilityType(d.FacilityType),
		Region:           models.Region{Sido: d.Sido, Sigungu: d.Sigungu},
		Phone:            d.Phone,
		Address:          d.Address,
		Rating:           d.Rating,
		ReviewCount:      d.ReviewCount,
		Specialties:      d.Specialties,
		AdmissionTypes:   d.AdmissionTypes,
		MonthlyCost:      d.MonthlyCost,
		Available:        d.Available == nil || *d.Available,
		IsRepresentative: d.IsRepresentative,
	}
	if d.Location != nil {
		f.Coordinate = &models.Coordinate{Lat: d.Location.Lat, Lng: d.Location.Lon}
	}
	return f
}
