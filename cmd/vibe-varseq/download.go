package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/inodb/vibe-varseq/internal/genome"
)

// UCSC goldenPath download server.
const goldenPathURL = "https://hgdownload.soe.ucsc.edu/goldenPath"

// genomeFastaURL returns the whole-genome FASTA URL for a UCSC assembly.
func genomeFastaURL(baseURL, assembly string) string {
	return fmt.Sprintf("%s/%s/bigZips/%s.fa.gz", strings.TrimRight(baseURL, "/"), assembly, assembly)
}

func newDownloadCmd() *cobra.Command {
	var (
		outputDir string
		baseURL   string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a reference genome FASTA from UCSC",
		Long: `Download a whole-genome FASTA from the UCSC goldenPath server, decompress it
and build its .fai index, so windows are read locally instead of through the
UCSC REST API.`,
		Example: `  vibe-varseq download --genome hg19
  vibe-varseq download --genome hg38 --output /data/genomes`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			assembly := viper.GetString("genome")
			if outputDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("cannot determine home directory: %w", err)
				}
				outputDir = filepath.Join(home, ".vibe-varseq", "genomes")
			}
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", outputDir, err)
			}

			destPath := filepath.Join(outputDir, assembly+".fa")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Downloading %s genome FASTA...\n", assembly)
			fmt.Fprintf(out, "Destination: %s\n\n", destPath)

			if err := downloadGenome(cmd.Context(), genomeFastaURL(baseURL, assembly), destPath, out); err != nil {
				return err
			}

			fmt.Fprintf(out, "  Indexing %s...\n", filepath.Base(destPath))
			src, err := genome.OpenFasta(destPath)
			if err != nil {
				return fmt.Errorf("index genome: %w", err)
			}
			fmt.Fprintf(out, "    Done: %d sequences\n", len(src.Chromosomes()))
			src.Close()

			fmt.Fprintf(out, "\nDownload complete!\n")
			fmt.Fprintf(out, "To use the local genome, run:\n")
			fmt.Fprintf(out, "  vibe-varseq config set genomes.%s %s\n", assembly, destPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (default: ~/.vibe-varseq/genomes)")
	cmd.Flags().StringVar(&baseURL, "url", goldenPathURL, "goldenPath base URL")
	return cmd
}

// downloadGenome fetches a gzipped FASTA and writes it decompressed to
// destPath, through a temporary file renamed into place on success.
func downloadGenome(ctx context.Context, url, destPath string, out io.Writer) error {
	// Check if file already exists
	if info, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(out, "  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Fprintf(out, "  Downloading %s...\n", url)

	client := &http.Client{
		Timeout: 2 * time.Hour, // whole genomes are ~1GB compressed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	bar := pb.New64(resp.ContentLength)
	bar.SetUnits(pb.U_BYTES)
	bar.Output = out
	bar.Start()
	defer bar.Finish()

	zr, err := gzip.NewReader(bar.NewProxyReader(resp.Body))
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, zr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(out, "    Done: %s\n", formatSize(written))
	return nil
}
