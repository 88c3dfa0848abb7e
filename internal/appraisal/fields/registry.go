package fields

import (
	"fmt"
	"sort"
)

// Group names one field group: a common step, a loan-type specific step or the review step.
// The loan-type schema table and the step renderer resolve steps through the same Group key.
type Group string

const (
	GroupApplicant     Group = "applicant"
	GroupKYC           Group = "kyc"
	GroupMortgage      Group = "mortgage"
	GroupSalary        Group = "salary"
	GroupWithinSavings Group = "within-savings"
	GroupDailySavings  Group = "daily-savings"
	GroupStandingOrder Group = "standing-order"
	GroupRealEstate    Group = "real-estate"
	GroupContainer     Group = "container"
	GroupAgricultural  Group = "agricultural"
	GroupExpress       Group = "express"
	GroupBusiness      Group = "business"
	GroupAboveSavings  Group = "above-savings"
	GroupReview        Group = "review"
)

var (
	byName  = map[string]Field{}
	byGroup = map[Group][]string{}
	owner   = map[string]Group{}
)

// register adds a group of fields. Field names are unique across all groups.
func register(g Group, fs ...Field) {
	if _, dup := byGroup[g]; dup {
		panic(fmt.Sprintf("fields: group %q registered twice", g))
	}
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		if prev, dup := owner[f.Name]; dup {
			panic(fmt.Sprintf("fields: %q registered by %q and %q", f.Name, prev, g))
		}
		if f.Label == "" {
			f.Label = FormatLabel(f.Name)
		}
		byName[f.Name] = f
		owner[f.Name] = g
		names = append(names, f.Name)
	}
	byGroup[g] = names
}

func init() {
	register(GroupApplicant, applicantFields...)
	register(GroupKYC, kycFields...)
	for g, fs := range loanSpecificFields {
		register(g, fs...)
	}
	register(GroupReview)
}

// Get returns the descriptor registered under name.
func Get(name string) (Field, bool) {
	f, ok := byName[name]
	return f.Clone(), ok
}

// GroupOf returns the group that owns the field.
func GroupOf(name string) (Group, bool) {
	g, ok := owner[name]
	return g, ok
}

// Lookup returns the ordered field descriptors of a group.
func Lookup(g Group) ([]Field, bool) {
	names, ok := byGroup[g]
	if !ok {
		return nil, false
	}
	out := make([]Field, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n].Clone())
	}
	return out, true
}

// Names returns every registered field name in lexical order.
func Names() []string {
	out := make([]string, 0, len(byName))
	for n := range byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Groups returns every registered group in lexical order.
func Groups() []Group {
	out := make([]Group, 0, len(byGroup))
	for g := range byGroup {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
