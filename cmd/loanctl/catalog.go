package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/submission"
)

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the loan products in selector order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tLABEL\tSTEPS")
			for _, d := range loantype.Types() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", d.Type, d.Label, d.Steps)
			}
			return tw.Flush()
		},
	}
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <loan-type>",
		Short: "Print the wizard steps and fields of a loan product as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := loantype.Parse(args[0])
			if err != nil {
				return err
			}
			steps, err := loantype.RulesFor(lt)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]interface{}{
				"loanType": string(lt),
				"label":    lt.Label(),
				"steps":    steps,
			})
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <loan-type>",
		Short: "Print the JSON schema of the submission payload fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := loantype.Parse(args[0])
			if err != nil {
				return err
			}
			schema, err := submission.PayloadSchema(lt)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	}
}
