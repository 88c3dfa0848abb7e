package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/common/config"
	"loan-appraiser/internal/common/database"
	"loan-appraiser/internal/common/logger"
)

func newExportCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export-approved",
		Short: "Export approved loans as CSV from the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			repo := repository.New(pg.DB, logger.NewNoOpLogger())
			n, err := repo.ExportApprovedCSV(cmd.Context(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d approved loan(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "approved_loans.csv", "output file, - for stdout")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
