// internal/appraisal/render/render.go
// Package render describes what a wizard step shows: the field group of a data-entry
// step, or the read-only summary of everything entered when on the review step.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/validator"
)

// ErrStepOutOfRange is returned for step indexes outside the loan type's step list.
var ErrStepOutOfRange = errors.New("STEP_OUT_OF_RANGE")

type Kind string

const (
	KindFields               Kind = "fields"
	KindSummary              Kind = "summary"
	KindMissingConfiguration Kind = "missing-configuration"
)

const (
	confirmedText    = "Confirmed / Yes"
	notConfirmedText = "Not Confirmed / No"
	currencySuffix   = " XAF"
)

// FieldView is a field descriptor plus its current value.
type FieldView struct {
	fields.Field
	Value any `json:"value,omitempty"`
}

// Item is one summary line.
type Item struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section groups summary lines by originating step.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

type View struct {
	Kind       Kind              `json:"kind"`
	StepIndex  int               `json:"stepIndex"`
	TotalSteps int               `json:"totalSteps"`
	Key        string            `json:"key"`
	Title      string            `json:"title"`
	LoanType   loantype.LoanType `json:"loanType"`
	LoanLabel  string            `json:"loanLabel"`
	Fields     []FieldView       `json:"fields,omitempty"`
	Summary    []Section         `json:"summary,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// GroupLookup resolves a field group. It is keyed by the same Group the schema table uses.
type GroupLookup func(g fields.Group) ([]fields.Field, bool)

type Renderer struct {
	lookup GroupLookup
}

// New returns a renderer resolving loan-specific groups through lookup.
func New(lookup GroupLookup) *Renderer {
	if lookup == nil {
		lookup = fields.Lookup
	}
	return &Renderer{lookup: lookup}
}

var defaultRenderer = New(fields.Lookup)

// Render uses the field registry as the group table.
func Render(stepIndex int, lt loantype.LoanType, values map[string]any) (View, error) {
	return defaultRenderer.Render(stepIndex, lt, values)
}

func (r *Renderer) Render(stepIndex int, lt loantype.LoanType, values map[string]any) (View, error) {
	steps, err := loantype.RulesFor(lt)
	if err != nil {
		return View{}, err
	}
	if stepIndex < 0 || stepIndex >= len(steps) {
		return View{}, fmt.Errorf("%w: %d not in [0,%d)", ErrStepOutOfRange, stepIndex, len(steps))
	}

	step := steps[stepIndex]
	v := View{
		StepIndex:  stepIndex,
		TotalSteps: len(steps),
		Key:        step.Key,
		Title:      step.Title,
		LoanType:   lt,
		LoanLabel:  lt.Label(),
	}

	if step.IsReview() {
		v.Kind = KindSummary
		v.Summary = r.summary(steps, lt, values)
		return v, nil
	}

	fs := step.Fields
	if stepIndex >= 2 {
		var ok bool
		if fs, ok = r.lookup(step.Group); !ok {
			v.Kind = KindMissingConfiguration
			v.Message = fmt.Sprintf("No field group is configured for %q (%s).", step.Group, lt)
			return v, nil
		}
	}

	v.Kind = KindFields
	v.Fields = make([]FieldView, 0, len(fs))
	for _, f := range fs {
		v.Fields = append(v.Fields, FieldView{Field: f, Value: values[f.Name]})
	}
	return v, nil
}

func (r *Renderer) summary(steps []loantype.StepDefinition, lt loantype.LoanType, values map[string]any) []Section {
	var out []Section
	n := 0
	for i, s := range steps {
		if s.IsReview() {
			continue
		}
		fs := s.Fields
		if i >= 2 {
			if resolved, ok := r.lookup(s.Group); ok {
				fs = resolved
			}
		}
		n++
		sec := Section{Title: sectionTitle(n, s, lt), Items: []Item{}}
		for _, f := range fs {
			val, ok := values[f.Name]
			if !ok || validator.IsEmpty(val) {
				continue
			}
			sec.Items = append(sec.Items, Item{
				Name:  f.Name,
				Label: fields.FormatLabel(f.Name),
				Value: FormatValue(f, val),
			})
		}
		out = append(out, sec)
	}
	return out
}

func sectionTitle(n int, s loantype.StepDefinition, lt loantype.LoanType) string {
	switch s.Group {
	case fields.GroupApplicant:
		return fmt.Sprintf("Step %d: Applicant & Loan Details", n)
	case fields.GroupKYC:
		return fmt.Sprintf("Step %d: KYC Details", n)
	}
	return fmt.Sprintf("Step %d: %s Specifics", n, strings.ToUpper(strings.ReplaceAll(string(lt), "-", " ")))
}

// FormatValue renders a value for the summary.
func FormatValue(f fields.Field, v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return confirmedText
		}
		return notConfirmedText
	case fields.FileRef:
		return x.Name + " (File ready for upload)"
	case *fields.FileRef:
		return x.Name + " (File ready for upload)"
	}

	if f.Type == fields.TypeCheckbox {
		if validator.IsTrue(v) {
			return confirmedText
		}
		return notConfirmedText
	}
	if f.Type == fields.TypeNumber {
		if n, err := validator.ToFloat(v); err == nil {
			return FormatAmount(n) + currencySuffix
		}
	}
	return fmt.Sprint(v)
}

// FormatAmount groups thousands the en-US way and keeps at most three decimals.
func FormatAmount(n float64) string {
	neg := n < 0
	n = math.Abs(n)

	s := strconv.FormatFloat(math.Round(n*1000)/1000, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
