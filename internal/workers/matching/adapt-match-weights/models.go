// internal/workers/matching/adapt-match-weights/models.go
package adaptmatchweights

import (
	"carejoa-matching/internal/common/validation"
	"carejoa-matching/internal/models"
)

const (
	ActionAdapt    = "adapt"
	ActionRollback = "rollback"
)

type Input struct {
	Action          string `json:"action,omitempty"`
	RollbackVersion int64  `json:"rollbackVersion,omitempty"`
}

type Output struct {
	Action          string                          `json:"action"`
	Published       bool                            `json:"weightsPublished"`
	PreviousVersion int64                           `json:"previousProfileVersion"`
	Version         int64                           `json:"profileVersion"`
	Reason          string                          `json:"adaptationReason,omitempty"`
	Samples         int                             `json:"feedbackSamples"`
	Weights         map[models.SubScoreName]float64 `json:"weights"`
}

var inputSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "action":          {"type": "string", "enum": ["adapt", "rollback"]},
    "rollbackVersion": {"type": "integer", "minimum": 1}
  }
}`)
