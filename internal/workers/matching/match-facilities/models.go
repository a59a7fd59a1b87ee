// internal/workers/matching/match-facilities/models.go
package matchfacilities

import (
	"carejoa-matching/internal/common/validation"
	"carejoa-matching/internal/matching"
	"carejoa-matching/internal/models"
)

// Input is the raw search form as process variables.
type Input struct {
	matching.RawCriteria
	RequestID string `json:"requestId,omitempty"`
}

type Output struct {
	RequestID      string                  `json:"requestId,omitempty"`
	MatchResults   []models.MatchResult    `json:"matchResults"`
	MatchCount     int                     `json:"matchCount"`
	TotalScanned   int                     `json:"totalScanned"`
	AppliedFilters matching.AppliedFilters `json:"appliedFilters"`
	ProfileVersion int64                   `json:"profileVersion"`
	Fingerprint    string                  `json:"matchFingerprint"`
	Signature      models.QuerySignature   `json:"matchSignature"`
}

// Numbers may arrive as strings from form submissions; the normalizer
// parses them, so only the shape is checked here.
var inputSchema = validation.MustCompile(`{
  "type": "object",
  "required": ["sido", "facilityType"],
  "properties": {
    "requestId":      {"type": "string"},
    "sido":           {"type": "string"},
    "sigungu":        {"type": ["string", "null"]},
    "facilityType":   {"type": "string"},
    "careGrade":      {"type": ["integer", "string", "null"]},
    "budgetMin":      {"type": ["number", "string", "null"]},
    "budgetMax":      {"type": ["number", "string", "null"]},
    "maxDistance":    {"type": ["number", "string", "null"]},
    "specialties":    {"type": ["array", "null"], "items": {"type": "string"}},
    "admissionTypes": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`)
