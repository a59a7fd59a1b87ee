package matching

import (
	"time"

	"carejoa-matching/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	gangnam = models.Coordinate{Lat: 37.5172, Lng: 127.0473}
	seocho  = models.Coordinate{Lat: 37.4837, Lng: 127.0324}
)

func ptrF(v float64) *float64 { return &v }
func ptrI64(v int64) *int64    { return &v }
func ptrInt(v int) *int        { return &v }
func ptrS(v string) *string    { return &v }

func defaultProfile() *models.WeightProfile {
	return &models.WeightProfile{
		Version: 1,
		Weights: map[models.SubScoreName]float64{
			models.SubScoreDistance:       0.30,
			models.SubScoreRating:         0.20,
			models.SubScorePrice:          0.20,
			models.SubScoreSpecialtyMatch: 0.20,
			models.SubScoreCollaborative:  0.10,
		},
		Neutral: map[models.SubScoreName]float64{},
	}
}

func facility(id, sigungu string, c *models.Coordinate) models.Facility {
	return models.Facility{
		ID:          id,
		Name:        "시설 " + id,
		Type:        models.FacilityTypeNursingHome,
		Region:      models.Region{Sido: "서울특별시", Sigungu: sigungu},
		Coordinate:  c,
		Rating:      ptrF(4.0),
		ReviewCount: 10,
		Available:   true,
	}
}

func gangnamQuery() models.MatchQuery {
	ref := gangnam
	return models.MatchQuery{
		Region:        models.Region{Sido: "서울특별시", Sigungu: "강남구"},
		FacilityType:  models.FacilityTypeNursingHome,
		MaxDistanceKm: 10,
		Reference:     &ref,
	}
}

func feedbackFor(q models.MatchQuery, chosen string, rating *int, at time.Time) models.FeedbackRecord {
	sig := q.Signature()
	rec := models.FeedbackRecord{
		ID:          "fb-" + chosen,
		Fingerprint: Fingerprint(sig),
		Signature:   sig,
		Rating:      rating,
		Timestamp:   at,
	}
	if chosen != "" {
		rec.ChosenFacilityID = ptrS(chosen)
	}
	return rec
}
