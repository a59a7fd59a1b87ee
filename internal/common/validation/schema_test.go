package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "carejoa-matching/internal/common/errors"
)

const testSchema = `{
  "type": "object",
  "required": ["sido", "facilityType"],
  "properties": {
    "sido": {"type": "string", "minLength": 1},
    "facilityType": {"type": "string", "enum": ["요양병원", "요양원"]},
    "careGrade": {"type": ["integer", "string", "null"]},
    "budget": {
      "type": "object",
      "properties": {"max": {"type": "number", "minimum": 0}}
    },
    "specialties": {"type": "array", "items": {"type": "string"}}
  }
}`

func TestSchema_Validate(t *testing.T) {
	schema := MustCompile(testSchema)

	tests := []struct {
		name      string
		doc       map[string]interface{}
		valid     bool
		wantField string
		wantCode  string
	}{
		{
			name:  "valid",
			doc:   map[string]interface{}{"sido": "서울특별시", "facilityType": "요양원", "careGrade": 3},
			valid: true,
		},
		{
			name:      "missing sido",
			doc:       map[string]interface{}{"facilityType": "요양원"},
			wantField: "sido",
			wantCode:  "REQUIRED_FIELD_MISSING",
		},
		{
			name:      "unknown facility type",
			doc:       map[string]interface{}{"sido": "서울특별시", "facilityType": "병원"},
			wantField: "facilityType",
			wantCode:  "INVALID_ENUM_VALUE",
		},
		{
			name:      "nested minimum",
			doc:       map[string]interface{}{"sido": "서울특별시", "facilityType": "요양원", "budget": map[string]interface{}{"max": -1}},
			wantField: "budget.max",
			wantCode:  "MINIMUM_VIOLATION",
		},
		{
			name:      "array item type",
			doc:       map[string]interface{}{"sido": "서울특별시", "facilityType": "요양원", "specialties": []interface{}{"치매", 7}},
			wantField: "specialties.1",
			wantCode:  "INVALID_TYPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := schema.Validate(tt.doc)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.valid {
				assert.NoError(t, res.Err())
				return
			}
			require.True(t, res.HasErrors(tt.wantField), "errors: %v", res.GetErrorMessages())
			assert.Equal(t, tt.wantCode, res.GetErrorsForField(tt.wantField)[0].Code)

			err := res.Err()
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`{`) })
}

func TestGetErrorsForField_Nested(t *testing.T) {
	res := &ValidationResult{Errors: []ValidationError{
		{Field: "budget.max", Code: "MINIMUM_VIOLATION"},
		{Field: "budgetMin", Code: "INVALID_TYPE"},
	}}
	assert.Len(t, res.GetErrorsForField("budget"), 1)
	assert.False(t, res.HasErrors("budget"))
}
