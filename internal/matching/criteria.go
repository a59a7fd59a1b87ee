package matching

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

// RawCriteria is the loosely typed inbound request. Numeric fields accept
// JSON numbers or numeric strings.
type RawCriteria struct {
	Sido           string      `json:"sido"`
	Sigungu        string      `json:"sigungu,omitempty"`
	FacilityType   string      `json:"facilityType"`
	CareGrade      interface{} `json:"careGrade,omitempty"`
	BudgetMin      interface{} `json:"budgetMin,omitempty"`
	BudgetMax      interface{} `json:"budgetMax,omitempty"`
	MaxDistance    interface{} `json:"maxDistance,omitempty"`
	Specialties    []string    `json:"specialties,omitempty"`
	AdmissionTypes []string    `json:"admissionTypes,omitempty"`
}

// NormalizerConfig bounds the search radius. A requested radius is clamped
// into [MinDistanceKm, MaxDistanceKm]; an absent or unparsable one becomes
// DefaultMaxDistanceKm.
type NormalizerConfig struct {
	DefaultMaxDistanceKm float64
	MinDistanceKm        float64
	MaxDistanceKm        float64
}

func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{DefaultMaxDistanceKm: 20, MinDistanceKm: 5, MaxDistanceKm: 50}
}

// Normalizer turns RawCriteria into a MatchQuery. It holds no mutable state.
type Normalizer struct {
	cfg     NormalizerConfig
	regions *RegionRegistry
}

// NewNormalizer uses the built-in region table when regions is nil.
func NewNormalizer(cfg NormalizerConfig, regions *RegionRegistry) *Normalizer {
	if regions == nil {
		regions = DefaultRegions()
	}
	return &Normalizer{cfg: cfg, regions: regions}
}

func (n *Normalizer) Normalize(raw RawCriteria) (models.MatchQuery, error) {
	region, center, err := n.regions.Resolve(raw.Sido, raw.Sigungu)
	if err != nil {
		return models.MatchQuery{}, err
	}

	ft := models.FacilityType(strings.TrimSpace(raw.FacilityType))
	if ft == "" {
		return models.MatchQuery{}, apperrors.NewValidationError("facilityType", "is required")
	}
	if !ft.Valid() {
		return models.MatchQuery{}, apperrors.NewValidationError("facilityType", fmt.Sprintf("unsupported facility type %q", ft))
	}

	q := models.MatchQuery{
		Region:         region,
		FacilityType:   ft,
		MaxDistanceKm:  n.maxDistance(raw.MaxDistance),
		Specialties:    normalizeSet(raw.Specialties),
		AdmissionTypes: normalizeSet(raw.AdmissionTypes),
		Reference:      &center,
	}

	if grade, ok, err := parseNumber(raw.CareGrade); err != nil {
		return models.MatchQuery{}, apperrors.NewValidationError("careGrade", "must be a number")
	} else if ok {
		g := models.CareGrade(grade)
		if float64(g) != grade || !g.Valid() {
			return models.MatchQuery{}, apperrors.NewValidationError("careGrade", "must be an integer between 1 and 5")
		}
		q.CareGrade = &g
	}

	budget, err := parseBudget(raw.BudgetMin, raw.BudgetMax)
	if err != nil {
		return models.MatchQuery{}, err
	}
	q.Budget = budget

	return q, nil
}

func (n *Normalizer) maxDistance(v interface{}) float64 {
	d, ok, err := parseNumber(v)
	if err != nil || !ok {
		return n.cfg.DefaultMaxDistanceKm
	}
	return math.Min(n.cfg.MaxDistanceKm, math.Max(n.cfg.MinDistanceKm, d))
}

func parseBudget(minRaw, maxRaw interface{}) (*models.BudgetRange, error) {
	lo, hasMin, err := parseNumber(minRaw)
	if err != nil {
		return nil, apperrors.NewValidationError("budgetMin", "must be a number")
	}
	hi, hasMax, err := parseNumber(maxRaw)
	if err != nil {
		return nil, apperrors.NewValidationError("budgetMax", "must be a number")
	}
	if !hasMin && !hasMax {
		return nil, nil
	}
	if hasMin && lo < 0 {
		return nil, apperrors.NewValidationError("budgetMin", "must be non-negative")
	}
	if hasMax && hi < 0 {
		return nil, apperrors.NewValidationError("budgetMax", "must be non-negative")
	}
	if hasMin && hasMax && lo > hi {
		return nil, apperrors.NewValidationError("budgetMin", "must not exceed budgetMax")
	}

	b := &models.BudgetRange{}
	if hasMin {
		v := int64(math.Round(lo))
		b.Min = &v
	}
	if hasMax {
		v := int64(math.Round(hi))
		b.Max = &v
	}
	return b, nil
}

// parseNumber reports ok=false for absent values (nil or blank string) and
// an error for values that are present but not numeric.
func parseNumber(v interface{}) (float64, bool, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false, err
		}
		f = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, err
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a finite number")
	}
	return f, true, nil
}

// normalizeSet trims, drops blanks, dedupes and sorts.
func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
