package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-varseq/internal/duckdb"
	"github.com/inodb/vibe-varseq/internal/variant"
)

func newLookupCmd() *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "lookup <chrom:pos>",
		Short: "Show every recorded outcome at a position",
		Long: `Show the ledger rows for variants and controls evaluated at a 1-based
position, across all runs.`,
		Example: `  vibe-varseq lookup --ledger runs.duckdb chr19:44908684
  vibe-varseq lookup --ledger runs.duckdb 19:44,908,684`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chrom, pos, err := parsePosition(args[0])
			if err != nil {
				return &usageError{err}
			}
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

			n, err := lookupVariant(store, chrom, pos, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("no outcomes recorded at %s:%d", chrom, pos)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "DuckDB ledger file (default: ledger from config)")
	return cmd
}

// parsePosition parses "chr19:44,908,684" into a lookup chromosome and a
// 1-based position.
func parsePosition(s string) (string, int64, error) {
	chrom, posStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || chrom == "" {
		return "", 0, fmt.Errorf("invalid position %q: expected chrom:pos", s)
	}
	pos, err := strconv.ParseInt(strings.NewReplacer(",", "", "_", "").Replace(posStr), 10, 64)
	if err != nil || pos < 1 {
		return "", 0, fmt.Errorf("invalid position %q: expected chrom:pos", s)
	}
	return variant.NormalizeChrom(chrom), pos, nil
}

// lookupVariant writes the ledger rows at chrom:pos as a table and returns
// how many there were.
func lookupVariant(store *duckdb.Store, chrom string, pos int64, w io.Writer) (int, error) {
	results, err := store.LookupVariant(chrom, pos)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Run\tKind\tID\tAlleles\tRef\tStatus\tReason\tEffect_key")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s>%s\t%s\t%s\t%s\t%s\n",
			shortID(r.RunID), r.Kind, orDash(r.ID), r.NonEffectAllele, r.EffectAllele,
			orDash(r.RefAllele), r.Status, orDash(r.Reason), orDash(shortID(r.EffectKey)))
	}
	return len(results), tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
