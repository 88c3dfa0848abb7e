// Package validation checks JSON envelopes against JSON Schema documents.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema is the subset of JSON Schema used to describe request and payload envelopes.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        interface{}         `json:"type,omitempty"` // string or []string
	Description string              `json:"description,omitempty"`
	Format      string              `json:"format,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	Enum        []interface{}       `json:"enum,omitempty"`
	Pattern     string              `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile prepares s for repeated validation.
func Compile(s JSONSchema) (*Validator, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(s JSONSchema) *Validator {
	v, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a decoded document (maps, slices, scalars or structs).
func (v *Validator) Validate(document interface{}) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

// ValidateJSON checks a raw JSON body.
func (v *Validator) ValidateJSON(body []byte) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

// ValidateInput validates input against schema in one shot.
func ValidateInput(input map[string]interface{}, schema JSONSchema) (*ValidationResult, error) {
	v, err := Compile(schema)
	if err != nil {
		return nil, err
	}
	return v.Validate(input)
}

// rootField is how gojsonschema names the document itself; required-property
// errors are reported against it with the property in Details.
const rootField = "(root)"

func toResult(r *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: r.Valid()}
	for _, e := range r.Errors() {
		field := e.Field()
		if field == rootField {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
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

// GetErrorsForField returns errors for a field and its nested members.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
