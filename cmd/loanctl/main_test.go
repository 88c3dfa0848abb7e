package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const mortgageValues = `loanType: mortgage-loan
values:
  applicant_name: A. Ngu
  loan_amount: 20000000
  annual_interest_rate_percent: 8
  loan_term_years: 15
  borrower_gross_monthly_income: 900000
  existing_monthly_debt_payments: 50000
  account_number: ACC123
  date_of_loan: 2024-01-10
  loan_purpose: business
  identity_card_number: CM-000123
  place_of_birth: Bamenda
  date_of_birth: 1985-05-02
  current_address: 12 Commercial Avenue, Bamenda, Cameroon
  marital_status: Married
  profession: Trader
  duration_with_mfi_years: 6
  num_loans_other_mfi: 0
  current_location: Bamenda
  land_title_document_check: true
  power_of_attorney_document_check: false
  no_existing_npl_check: true
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ==========================
// Catalog Tests
// ==========================

func TestTypesCmd(t *testing.T) {
	out, err := run(t, "types")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 12)
	assert.Contains(t, lines[0], "TYPE")
	assert.Contains(t, out, "salary-loan")
	assert.Contains(t, out, "Salary-Backed Loan")
}

func TestStepsCmd(t *testing.T) {
	out, err := run(t, "steps", "mortgage-loan")
	require.NoError(t, err)

	var doc struct {
		LoanType string `yaml:"loanType"`
		Steps    []struct {
			Key    string `yaml:"key"`
			Fields []struct {
				Name string `yaml:"name"`
			} `yaml:"fields"`
		} `yaml:"steps"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "mortgage-loan", doc.LoanType)
	require.Len(t, doc.Steps, 4)
	assert.Empty(t, doc.Steps[3].Fields)

	_, err = run(t, "steps", "payday-loan")
	assert.Error(t, err)
}

func TestSchemaCmd(t *testing.T) {
	out, err := run(t, "schema", "daily-loan")
	require.NoError(t, err)
	assert.Contains(t, out, `"loan_type"`)
	assert.Contains(t, out, `"daily-loan"`)
}

// ==========================
// Validate Tests
// ==========================

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		args     []string
		validate func(t *testing.T, out string, err error)
	}{
		{
			name:    "complete mortgage application",
			content: mortgageValues,
			validate: func(t *testing.T, out string, err error) {
				require.NoError(t, err, out)
				assert.Contains(t, out, "all steps valid")
			},
		},
		{
			name:    "missing applicant name fails the first step",
			content: strings.Replace(mortgageValues, "  applicant_name: A. Ngu\n", "", 1),
			validate: func(t *testing.T, out string, err error) {
				assert.ErrorIs(t, err, errInvalidValues)
				assert.Contains(t, out, "step 1")
				assert.Contains(t, out, "applicant_name:")
			},
		},
		{
			name:    "type flag overrides the file",
			content: mortgageValues,
			args:    []string{"--type", "payday-loan"},
			validate: func(t *testing.T, _ string, err error) {
				assert.Error(t, err)
			},
		},
		{
			name:    "json is accepted",
			content: `{"loanType": "salary-loan", "values": {}}`,
			validate: func(t *testing.T, out string, err error) {
				assert.ErrorIs(t, err, errInvalidValues)
				assert.Contains(t, out, "step 1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "values.yaml", tt.content)
			out, err := run(t, append([]string{"validate", path}, tt.args...)...)
			tt.validate(t, out, err)
		})
	}
}

func TestReadValues_RestoresFiles(t *testing.T) {
	doc, err := readValues(strings.NewReader(`loanType: mortgage-loan
values:
  land_title_document:
    name: title.pdf
    size: 2048
`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Values["land_title_document"])
	_, isMap := doc.Values["land_title_document"].(map[string]any)
	assert.False(t, isMap)
}
