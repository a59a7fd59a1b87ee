package matching

import (
	"math"

	"carejoa-matching/internal/models"
)

// Candidate is a facility that survived the hard filters, annotated with
// what the scoring stage needs.
type Candidate struct {
	Facility      *models.Facility
	DistanceKm    float64
	DistanceKnown bool
	// Missing lists requested specialties and admission types the facility
	// does not offer.
	Missing []string
}

// FilterReport counts survivors after each stage.
type FilterReport struct {
	Scanned        int  `json:"scanned"`
	AfterRegion    int  `json:"afterRegion"`
	AfterType      int  `json:"afterType"`
	AfterDistance  int  `json:"afterDistance"`
	AfterBudget    int  `json:"afterBudget"`
	UnknownDist    int  `json:"unknownDistance"`
	ShortCircuited bool `json:"shortCircuited"`
}

// Filter applies the hard filters cheapest first: region, type, distance,
// budget. The final specialty/admission pass only annotates.
func Filter(q models.MatchQuery, catalog []models.Facility) ([]Candidate, FilterReport) {
	report := FilterReport{Scanned: len(catalog)}

	byRegion := make([]*models.Facility, 0, len(catalog))
	for i := range catalog {
		f := &catalog[i]
		if f.Region.Sido != q.Region.Sido {
			continue
		}
		if q.Region.Sigungu != "" && f.Region.Sigungu != q.Region.Sigungu {
			continue
		}
		byRegion = append(byRegion, f)
	}
	report.AfterRegion = len(byRegion)

	byType := byRegion[:0]
	for _, f := range byRegion {
		if f.Type == q.FacilityType {
			byType = append(byType, f)
		}
	}
	report.AfterType = len(byType)

	if len(byType) == 0 {
		report.ShortCircuited = true
		return nil, report
	}

	candidates := make([]Candidate, 0, len(byType))
	for _, f := range byType {
		c := Candidate{Facility: f}
		if q.Reference != nil && q.Reference.Valid() && f.Coordinate != nil && f.Coordinate.Valid() {
			d := Distance(*q.Reference, *f.Coordinate)
			if !math.IsNaN(d) {
				c.DistanceKm = d
				c.DistanceKnown = true
			}
		}
		if c.DistanceKnown && c.DistanceKm > q.MaxDistanceKm {
			continue
		}
		if !c.DistanceKnown {
			report.UnknownDist++
		}
		candidates = append(candidates, c)
	}
	report.AfterDistance = len(candidates)

	if q.Budget != nil {
		lo, hi, hasMax := q.Budget.Bounds()
		kept := candidates[:0]
		for _, c := range candidates {
			cost := c.Facility.MonthlyCost
			if cost == nil || (*cost >= lo && (!hasMax || *cost <= hi)) {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	report.AfterBudget = len(candidates)

	for i := range candidates {
		candidates[i].Missing = missingRequirements(q, candidates[i].Facility)
	}

	return candidates, report
}

func missingRequirements(q models.MatchQuery, f *models.Facility) []string {
	var missing []string
	for _, s := range q.Specialties {
		if !f.HasSpecialty(s) {
			missing = append(missing, s)
		}
	}
	for _, a := range q.AdmissionTypes {
		if !f.HasAdmissionType(a) {
			missing = append(missing, a)
		}
	}
	return missing
}
