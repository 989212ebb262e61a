package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/genome"
	"github.com/inodb/vibe-varseq/internal/variant"
)

func newFetchCmd() *cobra.Command {
	var lineWidth int

	cmd := &cobra.Command{
		Use:   "fetch <region>",
		Short: "Print the model window centered on a region",
		Long: `Print the model window centered on the midpoint of a region, through the
DNA window cache. A single position is given as chrom:pos-pos.`,
		Example: `  vibe-varseq fetch chr19:44908684-44908684
  vibe-varseq fetch --genome hg38 19:44,905,796-44,909,393`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := genome.ParseRegion(args[0])
			if err != nil {
				return &usageError{err}
			}
			r.Chrom = variant.NormalizeChrom(r.Chrom)

			genomeID := viper.GetString("genome")
			genomes := openGenomes()
			defer genomes.Close()
			if err := genomes.Check(genomeID); err != nil {
				return err
			}

			dnaDir, _ := cacheDirs()
			windows := cache.NewDNACache(dnaDir, genomes, viper.GetInt("window"))
			windows.SetLogger(logger)

			seq, err := windows.GetOrFetch(cmd.Context(), r, genomeID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			win := genome.Normalize(r, windows.Window())
			fmt.Fprintf(out, ">%s %s\n", win, genomeID)
			for len(seq) > 0 {
				n := min(lineWidth, len(seq))
				fmt.Fprintln(out, seq[:n])
				seq = seq[n:]
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lineWidth, "line-width", 60, "FASTA line width")
	cmd.PreRunE = func(*cobra.Command, []string) error {
		if lineWidth <= 0 {
			return &usageError{fmt.Errorf("--line-width must be positive")}
		}
		return nil
	}
	return cmd
}
