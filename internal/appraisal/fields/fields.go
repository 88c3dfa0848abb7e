// internal/appraisal/fields/fields.go
// Package fields is the registry of every input the appraisal wizard can collect:
// its presentation type, display metadata and declarative validation rule.
package fields

import (
	"strings"
	"unicode"
)

// Type is the presentation type of a field.
type Type string

const (
	TypeText     Type = "text"
	TypeEmail    Type = "email"
	TypeNumber   Type = "number"
	TypeDate     Type = "date"
	TypeSelect   Type = "select"
	TypeCheckbox Type = "checkbox"
	TypeFile     Type = "file"
	TypeTextarea Type = "textarea"
)

// Comparison is the operator of a cross-field rule.
type Comparison string

const (
	CompareGTE Comparison = "gte"
	CompareLTE Comparison = "lte"
)

// Ref compares a numeric field with another numeric field of the same step.
type Ref struct {
	Field   string     `json:"field" yaml:"field"`
	Op      Comparison `json:"op" yaml:"op"`
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`
}

// Rule is the declarative validation constraint attached to a field.
type Rule struct {
	Required   bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Min        *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Positive   bool     `json:"positive,omitempty" yaml:"positive,omitempty"`
	Integer    bool     `json:"integer,omitempty" yaml:"integer,omitempty"`
	MustBeTrue bool     `json:"mustBeTrue,omitempty" yaml:"mustBeTrue,omitempty"`
	Ref        *Ref     `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Field is the descriptor exposed to renderers and validators.
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label" yaml:"label"`
	Type     Type     `json:"type" yaml:"type"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	HelpText string   `json:"helpText,omitempty" yaml:"helpText,omitempty"`
	Rule     Rule     `json:"rule" yaml:"rule"`
}

// Clone returns a copy of f that shares no slices or pointers with the registry.
func (f Field) Clone() Field {
	if f.Options != nil {
		f.Options = append([]string(nil), f.Options...)
	}
	if f.Rule.Min != nil {
		v := *f.Rule.Min
		f.Rule.Min = &v
	}
	if f.Rule.Max != nil {
		v := *f.Rule.Max
		f.Rule.Max = &v
	}
	if f.Rule.Ref != nil {
		r := *f.Rule.Ref
		f.Rule.Ref = &r
	}
	return f
}

// IsAttestation reports whether the field is a compliance confirmation that must be ticked.
func (f Field) IsAttestation() bool {
	return f.Type == TypeCheckbox && f.Rule.MustBeTrue
}

// FileRef is the value stored for a file field once the upload has been staged.
type FileRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Key         string `json:"key,omitempty"`
}

// RestoreFiles turns decoded JSON objects held by file fields back into FileRef.
// Values arrive as map[string]any after a round trip through a session store or a request body.
func RestoreFiles(values map[string]any) {
	for name, v := range values {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := Get(name); !ok || f.Type != TypeFile {
			continue
		}
		ref := FileRef{}
		ref.Name, _ = m["name"].(string)
		ref.ContentType, _ = m["contentType"].(string)
		ref.Key, _ = m["key"].(string)
		switch size := m["size"].(type) {
		case float64:
			ref.Size = int64(size)
		case int64:
			ref.Size = size
		case int:
			ref.Size = int64(size)
		}
		values[name] = ref
	}
}

// typeSuffixes are per-loan-type name suffixes that only exist to keep names unique.
var typeSuffixes = []string{
	" Standing Order",
	" Within Savings",
	" Container",
	" Business",
	" Express",
	" Daily",
	" Agri",
	" Re",
}

// FormatLabel derives a human label from a field name: "loan_term_years" becomes
// "Loan Term Years" and "loanAmountRequested" becomes "Loan Amount Requested".
// Trailing loan-type suffixes are dropped.
func FormatLabel(name string) string {
	words := splitName(name)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	label := strings.Join(words, " ")

	for _, suffix := range typeSuffixes {
		if strings.HasSuffix(label, suffix) && len(label) > len(suffix) {
			label = strings.TrimSuffix(label, suffix)
			break
		}
	}
	return label
}

func splitName(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			cur = append(cur, unicode.ToLower(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func ptr(v float64) *float64 { return &v }
