package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/appraisal/validator"
)

var errInvalidValues = errors.New("application values are invalid")

// valuesFile is the document accepted by validate. JSON is accepted as well.
type valuesFile struct {
	LoanType string         `yaml:"loanType"`
	Values   map[string]any `yaml:"values"`
}

type stepReport struct {
	Index  int
	Key    string
	Title  string
	Errors map[string]string
}

func newValidateCmd() *cobra.Command {
	var loanType string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a file of application values against every wizard step",
		Long: `Validate runs each data-entry step of the loan product against the values in
the file, the same way the wizard gates Next, and then checks the assembled
submission payload. The file holds a loanType and a values mapping; --type
overrides the loanType of the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := readValues(f)
			if err != nil {
				return err
			}
			if loanType != "" {
				doc.LoanType = loanType
			}
			lt, err := loantype.Parse(doc.LoanType)
			if err != nil {
				return err
			}
			return validateValues(cmd.OutOrStdout(), lt, doc.Values)
		},
	}
	cmd.Flags().StringVarP(&loanType, "type", "t", "", "loan type, overriding the file")
	return cmd
}

func readValues(r io.Reader) (valuesFile, error) {
	var doc valuesFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return doc, fmt.Errorf("decode values: %w", err)
	}
	if doc.Values == nil {
		doc.Values = map[string]any{}
	}
	fields.RestoreFiles(doc.Values)
	return doc, nil
}

// checkSteps validates every data-entry step and returns the failing ones.
func checkSteps(lt loantype.LoanType, values map[string]any) ([]stepReport, error) {
	steps, err := loantype.RulesFor(lt)
	if err != nil {
		return nil, err
	}
	var failed []stepReport
	for i, step := range steps {
		if step.IsReview() {
			continue
		}
		if res := validator.Validate(step, values); !res.Valid {
			failed = append(failed, stepReport{Index: i, Key: step.Key, Title: step.Title, Errors: res.Errors})
		}
	}
	return failed, nil
}

func validateValues(w io.Writer, lt loantype.LoanType, values map[string]any) error {
	failed, err := checkSteps(lt, values)
	if err != nil {
		return err
	}
	for _, r := range failed {
		fmt.Fprintf(w, "step %d (%s): %s\n", r.Index+1, r.Key, r.Title)
		names := make([]string, 0, len(r.Errors))
		for name := range r.Errors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, r.Errors[name])
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d step(s) failed", errInvalidValues, len(failed))
	}

	if err := submission.CheckPayload(submission.BuildPayload(values, lt)); err != nil {
		fmt.Fprintf(w, "payload: %v\n", err)
		return fmt.Errorf("%w: %v", errInvalidValues, err)
	}
	fmt.Fprintf(w, "%s: all steps valid\n", lt.Label())
	return nil
}
