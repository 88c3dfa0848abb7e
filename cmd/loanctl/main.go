package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "loanctl",
		Short:   "Inspect loan products and check application values offline",
		Version: version,
		Long: `loanctl works against the loan-type table compiled into the appraiser.

It lists the loan products and their wizard steps, prints the submission payload
schema of a product, validates a YAML or JSON file of application values step by
step, and exports the approved-loans report from the configured database.`,
		SilenceUsage: true,
	}
	root.AddCommand(newTypesCmd(), newStepsCmd(), newSchemaCmd(), newValidateCmd(), newExportCmd())
	return root
}
