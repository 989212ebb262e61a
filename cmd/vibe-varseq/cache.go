package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-varseq/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the DNA window and model result caches",
	}
	cmd.AddCommand(newCacheKeyCmd())
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <sequence-file|->",
		Short: "Print the result cache key of a sequence and whether it is cached",
		Long: `Print the result cache key of a sequence and whether it is cached.
The file holds a bare sequence or a single FASTA record; line breaks are
removed and bases upper-cased before hashing, as the pipeline does.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := readSequence(args[0])
			if err != nil {
				return err
			}
			_, resultDir := cacheDirs()
			status := "not cached"
			if cache.NewResultCache(resultDir).Has(seq) {
				status = "cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bases\t%s\n", cache.Key(seq), len(seq), status)
			return nil
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count cached windows and model results",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			dnaDir, resultDir := cacheDirs()
			windows, err := cache.NewDNACache(dnaDir, nil, 0).Count()
			if err != nil {
				return err
			}
			results, err := cache.NewResultCache(resultDir).Count()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DNA windows:    %d (%s)\n", windows, dnaDir)
			fmt.Fprintf(out, "Model results:  %d (%s)\n", results, resultDir)
			return nil
		},
	}
}

// readSequence reads a bare or FASTA-formatted sequence from path ("-" for
// stdin).
func readSequence(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, ">") {
			if sb.Len() > 0 {
				break
			}
			continue
		}
		sb.WriteString(strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read sequence: %w", err)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no sequence in %s", path)
	}
	return sb.String(), nil
}
