package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessDetailsValidator(t *testing.T) {
	v := NewBusinessDetailsValidator()

	tests := []struct {
		name       string
		document   map[string]interface{}
		wantValid  bool
		wantFields []string
	}{
		{
			name: "complete record",
			document: map[string]interface{}{
				"premiseAddress": "Lot 12, Jalan Ampang",
				"businessName":   "Kedai Runcit Ali",
				"operationType":  "retail",
				"employeeCount":  4,
				"notes":          "",
			},
			wantValid: true,
		},
		{
			name:      "partial patch",
			document:  map[string]interface{}{"employeeCount": 10},
			wantValid: true,
		},
		{
			name:       "negative employee count",
			document:   map[string]interface{}{"employeeCount": -1},
			wantFields: []string{"businessDetails.employeeCount"},
		},
		{
			name:       "fractional employee count",
			document:   map[string]interface{}{"employeeCount": 2.5},
			wantFields: []string{"businessDetails.employeeCount"},
		},
		{
			name:       "unknown key and empty name",
			document:   map[string]interface{}{"owner": "x", "businessName": ""},
			wantFields: []string{"businessDetails.businessName", "businessDetails.owner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(tt.document)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)

			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if tt.wantValid {
				assert.Empty(t, fields)
				return
			}
			assert.Equal(t, tt.wantFields, fields)
			for _, f := range tt.wantFields {
				assert.True(t, result.HasErrors(f))
			}
			assert.Len(t, result.GetErrorMessages(), len(tt.wantFields))
		})
	}
}

func TestNewValidator_InvalidSchema(t *testing.T) {
	_, err := NewValidator(`{"type": 12}`, "")
	assert.Error(t, err)
}
