// internal/workers/matching/record-match-feedback/models.go
package recordmatchfeedback

import (
	"carejoa-matching/internal/common/validation"
	"carejoa-matching/internal/models"
)

// Input carries what the match step returned plus the user's choice.
type Input struct {
	Signature        models.QuerySignature `json:"matchSignature"`
	Results          []models.MatchResult  `json:"matchResults"`
	ChosenFacilityID *string               `json:"chosenFacilityId,omitempty"`
	Rating           *int                  `json:"rating,omitempty"`
	ProfileVersion   int64                 `json:"profileVersion"`
}

type Output struct {
	FeedbackID       string `json:"feedbackId"`
	Fingerprint      string `json:"feedbackFingerprint"`
	FeedbackRecorded bool   `json:"feedbackRecorded"`
	HasSelection     bool   `json:"feedbackHasSelection"`
}

var inputSchema = validation.MustCompile(`{
  "type": "object",
  "required": ["matchSignature", "matchResults"],
  "properties": {
    "matchSignature": {
      "type": "object",
      "required": ["facilityType", "sido"],
      "properties": {
        "facilityType": {"type": "string", "minLength": 1},
        "sido":         {"type": "string", "minLength": 1}
      }
    },
    "matchResults": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["facilityId"],
        "properties": {"facilityId": {"type": "string"}}
      }
    },
    "chosenFacilityId": {"type": ["string", "null"], "minLength": 1},
    "rating":           {"type": ["integer", "null"], "minimum": 1, "maximum": 5},
    "profileVersion":   {"type": "integer", "minimum": 0}
  }
}`)
