// internal/models/feedback.go
package models

import (
	"fmt"
	"time"
)

// FeedbackRecord is an append-only outcome of one match presentation.
type FeedbackRecord struct {
	ID               string                   `json:"id"`
	Fingerprint      string                   `json:"fingerprint"`
	Signature        QuerySignature           `json:"signature"`
	ChosenFacilityID *string                  `json:"chosenFacilityId,omitempty"`
	Rating           *int                     `json:"rating,omitempty"`
	ChosenScores     map[SubScoreName]float64 `json:"chosenScores,omitempty"`
	BaselineScores   map[SubScoreName]float64 `json:"baselineScores,omitempty"`
	ProfileVersion   int64                    `json:"profileVersion,omitempty"`
	Timestamp        time.Time                `json:"timestamp"`
}

func (r *FeedbackRecord) HasSelection() bool {
	return r.ChosenFacilityID != nil && *r.ChosenFacilityID != ""
}

// Validate rejects records that cannot be appended.
func (r *FeedbackRecord) Validate() error {
	if r.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if r.ChosenFacilityID != nil && *r.ChosenFacilityID == "" {
		return fmt.Errorf("chosenFacilityId must not be empty when present")
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return fmt.Errorf("rating must be within 1..5, got %d", *r.Rating)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if err := validateScores(r.ChosenScores); err != nil {
		return fmt.Errorf("chosenScores: %w", err)
	}
	if err := validateScores(r.BaselineScores); err != nil {
		return fmt.Errorf("baselineScores: %w", err)
	}
	return nil
}

func validateScores(scores map[SubScoreName]float64) error {
	for name, v := range scores {
		if !name.Valid() {
			return fmt.Errorf("unknown sub-score %q", name)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("%s out of range: %v", name, v)
		}
	}
	return nil
}
