// internal/appraisal/loantype/loantype.go
// Package loantype is the single schema table of the appraisal wizard: for every loan
// product it lists the ordered wizard steps and the fields each step collects.
package loantype

import (
	"errors"
	"fmt"

	"loan-appraiser/internal/appraisal/fields"
)

// LoanType identifies a loan product.
type LoanType string

const (
	Mortgage      LoanType = "mortgage-loan"
	Salary        LoanType = "salary-loan"
	WithinSavings LoanType = "loan-within-saving"
	DailySavings  LoanType = "daily-loan"
	StandingOrder LoanType = "standing-order-loan"
	RealEstate    LoanType = "real-estate-loan"
	Container     LoanType = "container-loan"
	Agricultural  LoanType = "agricultural-loan"
	Express       LoanType = "express-loan"
	Business      LoanType = "business-loan"
	AboveSavings  LoanType = "above-savings-loan"
)

// ErrUnknownLoanType is returned for identifiers missing from the table.
var ErrUnknownLoanType = errors.New("UNKNOWN_LOAN_TYPE")

// StepDefinition is one wizard step: its key, title and the fields it validates.
// The review step carries an empty field list.
type StepDefinition struct {
	Key    string         `json:"key" yaml:"key"`
	Title  string         `json:"title" yaml:"title"`
	Group  fields.Group   `json:"group" yaml:"group"`
	Fields []fields.Field `json:"fields" yaml:"fields"`
}

// IsReview reports whether the step is the terminal review step.
func (s StepDefinition) IsReview() bool {
	return s.Group == fields.GroupReview
}

// Names returns the field names of the step in display order.
func (s StepDefinition) Names() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Descriptor is the selector entry for a loan type.
type Descriptor struct {
	Type        LoanType `json:"type" yaml:"type"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       int      `json:"steps" yaml:"steps"`
}

type entry struct {
	label       string
	description string
	groups      []fields.Group
}

// order is the selector order.
var order = []LoanType{
	Mortgage, Salary, WithinSavings, DailySavings, StandingOrder,
	RealEstate, Container, Agricultural, Express, Business, AboveSavings,
}

var table = map[LoanType]entry{
	Mortgage: {
		label:       "Mortgage Loan",
		description: "Secured by a legal mortgage over land with a clear title.",
		groups:      []fields.Group{fields.GroupMortgage},
	},
	Salary: {
		label:       "Salary-Backed Loan",
		description: "Repaid through an irrevocable salary transfer to the MFI.",
		groups:      []fields.Group{fields.GroupSalary},
	},
	WithinSavings: {
		label:       "Loan Within Savings",
		description: "Fully covered by the member's blocked savings balance.",
		groups:      []fields.Group{fields.GroupWithinSavings},
	},
	DailySavings: {
		label:       "Daily Savings Loan",
		description: "For members with an active daily savings account.",
		groups:      []fields.Group{fields.GroupDailySavings},
	},
	StandingOrder: {
		label:       "Standing Order Loan",
		description: "Short-term loan repaid by an active standing order.",
		groups:      []fields.Group{fields.GroupStandingOrder},
	},
	RealEstate: {
		label:       "Real Estate Loan",
		description: "Long-term financing for property backed by a registered title.",
		groups:      []fields.Group{fields.GroupRealEstate},
	},
	Container: {
		label:       "Container Loan",
		description: "Financing for imported goods against the bill of lading.",
		groups:      []fields.Group{fields.GroupContainer},
	},
	Agricultural: {
		label:       "Agricultural Loan",
		description: "For crops, livestock and farm equipment.",
		groups:      []fields.Group{fields.GroupAgricultural},
	},
	Express: {
		label:       "Express Loan",
		description: "Fast-track loan repaid at source or by standing order.",
		groups:      []fields.Group{fields.GroupExpress},
	},
	Business: {
		label:       "Business Loan",
		description: "For registered businesses with at least three years of operation.",
		groups:      []fields.Group{fields.GroupBusiness},
	},
	AboveSavings: {
		label:       "Loans Above Savings",
		description: "Amount exceeds the savings balance and requires guarantees.",
		groups:      []fields.Group{fields.GroupAboveSavings},
	},
}

func step(key, title string, g fields.Group) StepDefinition {
	fs, ok := fields.Lookup(g)
	if !ok {
		panic(fmt.Sprintf("loantype: field group %q is not registered", g))
	}
	return StepDefinition{Key: key, Title: title, Group: g, Fields: fs}
}

// Parse converts a raw identifier.
func Parse(s string) (LoanType, error) {
	t := LoanType(s)
	if _, ok := table[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLoanType, s)
	}
	return t, nil
}

// Valid reports whether the loan type is registered.
func (t LoanType) Valid() bool {
	_, ok := table[t]
	return ok
}

// Label returns the display label, or the raw identifier for unknown types.
func (t LoanType) Label() string {
	if e, ok := table[t]; ok {
		return e.label
	}
	return string(t)
}

func (t LoanType) String() string { return string(t) }

// Groups returns the loan-specific field groups of t, in step order.
func Groups(t LoanType) ([]fields.Group, error) {
	e, ok := table[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoanType, string(t))
	}
	return append([]fields.Group(nil), e.groups...), nil
}

// RulesFor returns the ordered steps of t: the two common steps, the loan-specific
// step(s), then the review step. Every call builds a fresh copy.
func RulesFor(t LoanType) ([]StepDefinition, error) {
	e, ok := table[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoanType, string(t))
	}

	steps := make([]StepDefinition, 0, len(e.groups)+3)
	steps = append(steps,
		step("applicant", "Applicant & Loan Details", fields.GroupApplicant),
		step("kyc", "KYC Details", fields.GroupKYC),
	)
	for _, g := range e.groups {
		steps = append(steps, step(string(g), e.label+" Specifics", g))
	}
	return append(steps, StepDefinition{Key: "review", Title: "Review & Submit", Group: fields.GroupReview, Fields: []fields.Field{}}), nil
}

// Lookup is RulesFor for a raw identifier.
func Lookup(s string) ([]StepDefinition, error) {
	t, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return RulesFor(t)
}

// StepCount returns the total number of steps of t, review included.
func StepCount(t LoanType) (int, error) {
	e, ok := table[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLoanType, string(t))
	}
	return len(e.groups) + 3, nil
}

// RelevantFields returns the field names of every data-entry step of t, in step order.
func RelevantFields(t LoanType) ([]string, error) {
	steps, err := RulesFor(t)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range steps {
		names = append(names, s.Names()...)
	}
	return names, nil
}

// Types lists every registered loan type in selector order.
func Types() []Descriptor {
	out := make([]Descriptor, 0, len(order))
	for _, t := range order {
		e := table[t]
		out = append(out, Descriptor{
			Type:        t,
			Label:       e.label,
			Description: e.description,
			Steps:       len(e.groups) + 3,
		})
	}
	return out
}
