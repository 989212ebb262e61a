package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-varseq/internal/duckdb"
	"github.com/inodb/vibe-varseq/internal/output"
)

func newCompareCmd() *cobra.Command {
	var (
		ledgerPath string
		showAll    bool
	)

	cmd := &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Compare the outcomes of two ledger runs",
		Long: `Compare the per-variant outcomes of two runs recorded in the ledger.
Successful variants match when both runs built the same effect and
non-effect sequences; failed variants match when both failed for the same
reason. Runs may be given by a unique ID prefix.`,
		Example: `  vibe-varseq compare --ledger runs.duckdb 0f8fad5b 7c9e6679
  vibe-varseq compare --ledger runs.duckdb --all 0f8fad5b 7c9e6679`,
		Args: exactArgs(2),
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

			v := output.NewValidationWriter(cmd.OutOrStdout(), showAll)
			if err := compareRuns(store, args[0], args[1], v); err != nil {
				return err
			}
			v.WriteSummary(os.Stderr)
			return nil
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "DuckDB ledger file (default: ledger from config)")
	cmd.Flags().BoolVar(&showAll, "all", false, "Show matching variants too")
	return cmd
}

// compareRuns writes the comparison of two runs to v.
func compareRuns(store *duckdb.Store, a, b string, v *output.ValidationWriter) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	runA, err := resolveRun(runs, a)
	if err != nil {
		return err
	}
	runB, err := resolveRun(runs, b)
	if err != nil {
		return err
	}

	resultsA, err := store.RunResults(runA.ID)
	if err != nil {
		return err
	}
	resultsB, err := store.RunResults(runB.ID)
	if err != nil {
		return err
	}

	if err := v.WriteHeader(); err != nil {
		return err
	}
	for _, p := range output.PairResults(resultsA, resultsB) {
		if err := v.WriteComparison(p); err != nil {
			return err
		}
	}
	return v.Flush()
}

// resolveRun finds the run whose ID starts with prefix.
func resolveRun(runs []duckdb.Run, prefix string) (duckdb.Run, error) {
	var found []duckdb.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return duckdb.Run{}, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return found[0], nil
	default:
		return duckdb.Run{}, fmt.Errorf("run prefix %q is ambiguous (%d runs)", prefix, len(found))
	}
}
