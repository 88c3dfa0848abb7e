// internal/appraisal/validator/validator.go
// Package validator checks one wizard step's values against the declarative rules of
// its fields. It is synchronous and side-effect free: only the step's own fields are read.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
)

// Result is the outcome of validating one step.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Fields returns the names of the failing fields in step order.
func (r Result) Fields(step loantype.StepDefinition) []string {
	var out []string
	for _, f := range step.Fields {
		if _, bad := r.Errors[f.Name]; bad {
			out = append(out, f.Name)
		}
	}
	return out
}

// Validate checks values against every field of the step.
// A review step has no fields and is always valid.
func Validate(step loantype.StepDefinition, values map[string]any) Result {
	errs := make(map[string]string)
	for _, f := range step.Fields {
		if msg := checkField(f, values); msg != "" {
			errs[f.Name] = msg
		}
	}
	if len(errs) == 0 {
		return Result{Valid: true}
	}
	return Result{Valid: false, Errors: errs}
}

// ValidateField checks a single field in the context of its step values.
func ValidateField(f fields.Field, values map[string]any) string {
	return checkField(f, values)
}

func checkField(f fields.Field, values map[string]any) string {
	v, present := values[f.Name]
	if !present || IsEmpty(v) {
		if f.Rule.Required {
			return fmt.Sprintf("%s is required.", fields.FormatLabel(f.Name))
		}
		if f.Rule.MustBeTrue {
			return fmt.Sprintf("%s must be confirmed.", f.Label)
		}
		return ""
	}

	switch f.Type {
	case fields.TypeNumber:
		return checkNumber(f, v, values)
	case fields.TypeDate:
		if _, err := ParseDate(v); err != nil {
			return "Invalid date format."
		}
	case fields.TypeEmail:
		if !isEmail(v) {
			return "Must be a valid email."
		}
	case fields.TypeSelect:
		s := fmt.Sprint(v)
		for _, o := range f.Options {
			if s == o {
				return ""
			}
		}
		return fmt.Sprintf("Must be one of: %s.", strings.Join(f.Options, ", "))
	case fields.TypeCheckbox:
		if f.Rule.MustBeTrue && !IsTrue(v) {
			return fmt.Sprintf("%s must be confirmed.", f.Label)
		}
	}
	return ""
}

func checkNumber(f fields.Field, v any, values map[string]any) string {
	n, err := ToFloat(v)
	if err != nil {
		return fmt.Sprintf("%s must be a number.", fields.FormatLabel(f.Name))
	}

	r := f.Rule
	switch {
	case r.Positive && n <= 0:
		return fmt.Sprintf("%s must be positive.", fields.FormatLabel(f.Name))
	case r.Min != nil && n < *r.Min:
		return fmt.Sprintf("Must be %s or greater.", strconv.FormatFloat(*r.Min, 'f', -1, 64))
	case r.Max != nil && n > *r.Max:
		return fmt.Sprintf("Must be %s or less.", strconv.FormatFloat(*r.Max, 'f', -1, 64))
	case r.Integer && n != math.Trunc(n):
		return "Must be a whole number."
	}

	if r.Ref != nil {
		other, ok := values[r.Ref.Field]
		if !ok || IsEmpty(other) {
			return ""
		}
		ref, err := ToFloat(other)
		if err != nil {
			return ""
		}
		var pass bool
		switch r.Ref.Op {
		case fields.CompareGTE:
			pass = n >= ref
		case fields.CompareLTE:
			pass = n <= ref
		default:
			pass = true
		}
		if !pass {
			if r.Ref.Message != "" {
				return r.Ref.Message
			}
			return fmt.Sprintf("Must be %s %s.", opWord(r.Ref.Op), fields.FormatLabel(r.Ref.Field))
		}
	}
	return ""
}

func opWord(op fields.Comparison) string {
	if op == fields.CompareLTE {
		return "at most"
	}
	return "at least"
}

// IsEmpty reports whether v counts as no input: nil, a blank string or a file with no name.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case fields.FileRef:
		return x.Name == ""
	case *fields.FileRef:
		return x == nil || x.Name == ""
	}
	return false
}

// IsTrue reports whether a checkbox value is an affirmative confirmation.
func IsTrue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s == "true" || s == "on"
	}
	return false
}

// ToFloat coerces a submitted numeric value. Non-numeric input is an error, never NaN.
func ToFloat(v any) (float64, error) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x.String())
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		n = f
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return n, nil
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, nil
		}
		return time.Parse(time.RFC3339, s)
	}
	return time.Time{}, fmt.Errorf("unsupported date value %T", v)
}

func isEmail(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}
