package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// BusinessDetailsSchema constrains the nested business-operation record. Every
// field is optional so the same schema serves full documents and patches.
const BusinessDetailsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "premiseAddress": {"type": "string", "minLength": 1, "maxLength": 500},
    "businessName":   {"type": "string", "minLength": 1, "maxLength": 200},
    "operationType":  {"type": "string", "minLength": 1, "maxLength": 100},
    "employeeCount":  {"type": "integer", "minimum": 0, "maximum": 100000},
    "notes":          {"type": "string", "maxLength": 2000}
  }
}`

const rootContext = "(root)"

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator validates JSON documents against a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
	prefix string
}

// NewValidator compiles schemaJSON. Field paths in results are prefixed with prefix.
func NewValidator(schemaJSON, prefix string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema, prefix: prefix}, nil
}

// NewBusinessDetailsValidator returns the validator for create and update payloads.
func NewBusinessDetailsValidator() *Validator {
	v, err := NewValidator(BusinessDetailsSchema, "businessDetails")
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks document (any JSON-marshalable Go value).
func (v *Validator) Validate(document interface{}) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   v.fieldPath(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })

	return &ValidationResult{
		Valid:  result.Valid(),
		Errors: errs,
	}, nil
}

func (v *Validator) fieldPath(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "additional_property_not_allowed" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == rootContext {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	if field == rootContext {
		return v.prefix
	}
	if v.prefix == "" {
		return field
	}
	return v.prefix + "." + field
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
