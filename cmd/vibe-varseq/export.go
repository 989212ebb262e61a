package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-varseq/internal/duckdb"
	"github.com/inodb/vibe-varseq/internal/output"
)

func newExportCmd() *cobra.Command {
	var (
		outputPath string
		ledgerPath string
		runIDs     []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledger runs to an Excel workbook",
		Example: `  vibe-varseq export --ledger runs.duckdb -o runs.xlsx
  vibe-varseq export --ledger runs.duckdb --run 0f8fad5b-d9cb-469f-a165-70867728950e -o run.xlsx`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledgerPath == "" {
				ledgerPath = viper.GetString("ledger")
			}
			if ledgerPath == "" {
				return &usageError{fmt.Errorf("--ledger is required")}
			}
			store, err := duckdb.Open(ledgerPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := exportRuns(store, runIDs, outputPath)
			if err != nil {
				return err
			}
			logger.Info("exported runs", zap.Int("runs", n), zap.String("path", outputPath))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs to %s\n", n, outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "varseq_runs.xlsx", "Output workbook")
	cmd.Flags().StringSliceVar(&runIDs, "run", nil, "Only export these run IDs (default: all)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "DuckDB ledger file (default: ledger from config)")
	return cmd
}

// exportRuns writes the selected runs of store to an xlsx workbook.
func exportRuns(store *duckdb.Store, runIDs []string, path string) (int, error) {
	runs, err := store.Runs()
	if err != nil {
		return 0, err
	}
	if len(runIDs) > 0 {
		want := make(map[string]bool, len(runIDs))
		for _, id := range runIDs {
			want[id] = true
		}
		selected := runs[:0]
		for _, r := range runs {
			if want[r.ID] {
				selected = append(selected, r)
			}
		}
		runs = selected
	}
	if len(runs) == 0 {
		return 0, fmt.Errorf("no matching runs in ledger")
	}

	x, err := output.NewXLSXWriter()
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		summary, err := store.Summary(run.ID)
		if err != nil {
			return 0, err
		}
		results, err := store.RunResults(run.ID)
		if err != nil {
			return 0, err
		}
		if err := x.AddRun(run, summary, results); err != nil {
			return 0, err
		}
	}
	if err := x.SaveAs(path); err != nil {
		return 0, err
	}
	return x.Runs(), nil
}
