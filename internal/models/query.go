// internal/models/query.go
package models

// CareGrade is the long-term care insurance grade, 1 (most severe) to 5.
type CareGrade int

const (
	MinCareGrade CareGrade = 1
	MaxCareGrade CareGrade = 5
)

func (g CareGrade) Valid() bool {
	return g >= MinCareGrade && g <= MaxCareGrade
}

// BudgetRange is a monthly budget in KRW. A nil bound is open.
type BudgetRange struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// Bounds returns the inclusive range. A missing min is 0; hasMax is false
// when the range is open above.
func (b *BudgetRange) Bounds() (lo, hi int64, hasMax bool) {
	if b == nil {
		return 0, 0, false
	}
	if b.Min != nil {
		lo = *b.Min
	}
	if b.Max != nil {
		return lo, *b.Max, true
	}
	return lo, 0, false
}

// MatchQuery is the normalized, strictly typed form of a match request.
type MatchQuery struct {
	Region         Region       `json:"region"`
	FacilityType   FacilityType `json:"facilityType"`
	CareGrade      *CareGrade   `json:"careGrade,omitempty"`
	Budget         *BudgetRange `json:"budget,omitempty"`
	MaxDistanceKm  float64      `json:"maxDistanceKm"`
	Specialties    []string     `json:"specialties"`
	AdmissionTypes []string     `json:"admissionTypes"`
	Reference      *Coordinate  `json:"reference,omitempty"`
}

// RequirementCount is the number of requested specialties and admission types.
func (q MatchQuery) RequirementCount() int {
	return len(q.Specialties) + len(q.AdmissionTypes)
}

// Signature strips the query down to the parts used to compare past queries.
func (q MatchQuery) Signature() QuerySignature {
	sig := QuerySignature{
		FacilityType:   q.FacilityType,
		Sido:           q.Region.Sido,
		Sigungu:        q.Region.Sigungu,
		Specialties:    append([]string(nil), q.Specialties...),
		AdmissionTypes: append([]string(nil), q.AdmissionTypes...),
		HasBudget:      q.Budget != nil,
	}
	if q.CareGrade != nil {
		sig.CareGrade = int(*q.CareGrade)
	}
	return sig
}

// QuerySignature is the non free-text identity of a query. Sets are kept
// sorted so that equal queries produce equal signatures.
type QuerySignature struct {
	FacilityType   FacilityType `json:"facilityType"`
	Sido           string       `json:"sido"`
	Sigungu        string       `json:"sigungu,omitempty"`
	CareGrade      int          `json:"careGrade,omitempty"`
	Specialties    []string     `json:"specialties,omitempty"`
	AdmissionTypes []string     `json:"admissionTypes,omitempty"`
	HasBudget      bool         `json:"hasBudget"`
}

// Requirements returns the tagged union of specialty and admission requirements.
func (s QuerySignature) Requirements() []string {
	out := make([]string, 0, len(s.Specialties)+len(s.AdmissionTypes))
	for _, v := range s.Specialties {
		out = append(out, "specialty:"+v)
	}
	for _, v := range s.AdmissionTypes {
		out = append(out, "admission:"+v)
	}
	return out
}
