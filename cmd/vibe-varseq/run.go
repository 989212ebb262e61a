package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/inodb/vibe-varseq/internal/allele"
	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/duckdb"
	"github.com/inodb/vibe-varseq/internal/model"
	"github.com/inodb/vibe-varseq/internal/output"
	"github.com/inodb/vibe-varseq/internal/pipeline"
	"github.com/inodb/vibe-varseq/internal/variant"
)

type runOptions struct {
	num             int
	skip            int
	filterIndels    bool
	resume          bool
	negativeControl int64
	vcfPath         string
	tsvPath         string
	inputFormat     string
	noProgress      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] <variant-file>",
		Short: "Run the model over every variant in a file",
		Long: `Run the model over both alleles of every variant in a summary-statistics
or VCF file. Windows are fetched in parallel; the model runs in a single
stage. Outputs are cached by sequence content.

Summary-statistics input is whitespace-delimited with one header line and
columns: chromosome, position, id, effect allele, non-effect allele, effect
size, standard error, p-value. Use '-' to read from stdin.`,
		Example: `  vibe-varseq run kunkle.txt
  vibe-varseq run -n 1000 -s 5000 -w 8 --genome hg38 --filter-indels kunkle.txt
  vibe-varseq run --resume --negative-control 10000 kunkle.txt
  vibe-varseq run --ledger runs.duckdb --tsv outcomes.tsv calls.vcf.gz`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.num, "num", "n", 0, "Process at most N variants (0: all)")
	f.IntVarP(&opts.skip, "skip", "s", 0, "Skip the first N data lines")
	f.IntP("workers", "w", 0, "Sequence retrieval workers (default: CPUs - 2)")
	f.Int("queue-size", 0, "Prepared variants buffered ahead of the model (default: 2 x workers)")
	f.BoolVar(&opts.filterIndels, "filter-indels", false, "Only process single-base variants")
	f.BoolVar(&opts.resume, "resume", false, "Skip the model for variants whose outputs are already cached")
	f.Int64Var(&opts.negativeControl, "negative-control", 0, "Also run a control pair at position + N (0: off)")
	f.StringVar(&opts.vcfPath, "vcf", "", "Write processed variants as VCF (default with controls: controls_<input>.vcf)")
	f.StringVar(&opts.tsvPath, "tsv", "", "Write every outcome, failures included, as tab-delimited text")
	f.String("ledger", "", "Record the run in this DuckDB file")
	f.StringVar(&opts.inputFormat, "input-format", "", "Input format: sumstats, vcf (auto-detected if not specified)")
	f.String("model-url", "", "Model server URL")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	viper.BindPFlag("workers", f.Lookup("workers"))
	viper.BindPFlag("queue-size", f.Lookup("queue-size"))
	viper.BindPFlag("ledger", f.Lookup("ledger"))
	viper.BindPFlag("model.url", f.Lookup("model-url"))

	return cmd
}

func runRun(ctx context.Context, inputPath string, opts runOptions) error {
	genomeID := viper.GetString("genome")
	window := viper.GetInt("window")
	if window <= 0 || window%2 != 0 {
		return &usageError{fmt.Errorf("window must be a positive even number, got %d", window)}
	}
	modelURL := viper.GetString("model.url")
	if modelURL == "" {
		return fmt.Errorf("no model server configured; set model.url (vibe-varseq config set model.url http://host:port)")
	}

	genomes := openGenomes()
	defer genomes.Close()
	if err := genomes.Check(genomeID); err != nil {
		return err
	}

	selectOpts := variant.Options{Skip: opts.skip, Limit: opts.num, FilterIndels: opts.filterIndels}
	parser, err := variant.Open(inputPath, opts.inputFormat)
	if err != nil {
		return err
	}
	reader := variant.NewReader(parser, selectOpts)
	defer reader.Close()

	dnaDir, resultDir := cacheDirs()
	windows := cache.NewDNACache(dnaDir, genomes, window)
	windows.SetLogger(logger)
	results := cache.NewResultCache(resultDir)
	results.SetLogger(logger)

	runner := model.NewRunner(model.HTTPLoader(modelURL, viper.GetDuration("model.timeout")), results)
	runner.SetLogger(logger)

	orch := pipeline.New(pipeline.Config{
		Genome:        genomeID,
		Workers:       viper.GetInt("workers"),
		QueueSize:     viper.GetInt("queue-size"),
		Resume:        opts.resume,
		ControlOffset: opts.negativeControl,
	}, windows, allele.NewBuilder(window), runner, results)
	orch.SetLogger(logger)

	logger.Info("starting run",
		zap.String("input", inputPath),
		zap.String("genome", genomeID),
		zap.Int("window", window),
		zap.Int("workers", orch.Config().Workers),
		zap.Bool("resume", opts.resume),
		zap.Int64("negative_control", opts.negativeControl))

	var flushers []func() error

	vcfPath := opts.vcfPath
	if vcfPath == "" && opts.negativeControl != 0 {
		vcfPath = output.DefaultVCFPath(inputPath)
	}
	if vcfPath != "" {
		f, err := os.Create(vcfPath)
		if err != nil {
			return fmt.Errorf("create VCF output: %w", err)
		}
		defer f.Close()
		vw := output.NewVCFWriter(f)
		if err := vw.WriteHeader(); err != nil {
			return fmt.Errorf("write VCF header: %w", err)
		}
		orch.AddRecorder(vw)
		flushers = append(flushers, vw.Flush)
	}

	if opts.tsvPath != "" {
		f, err := os.Create(opts.tsvPath)
		if err != nil {
			return fmt.Errorf("create TSV output: %w", err)
		}
		defer f.Close()
		tw := output.NewTabWriter(f)
		if err := tw.WriteHeader(); err != nil {
			return fmt.Errorf("write TSV header: %w", err)
		}
		orch.AddRecorder(tw)
		flushers = append(flushers, tw.Flush)
	}

	if ledgerPath := viper.GetString("ledger"); ledgerPath != "" {
		rec, closeLedger, err := openLedger(ledgerPath, inputPath, genomeID, window)
		if err != nil {
			return err
		}
		defer closeLedger()
		orch.AddRecorder(rec)
		flushers = append(flushers, rec.Flush)
	}

	var bar *pb.ProgressBar
	if !opts.noProgress {
		bar = newRunProgress(inputPath, opts.inputFormat, selectOpts)
		orch.OnProgress(func(s pipeline.Statistics) {
			bar.Set(s.Total())
			bar.Postfix(fmt.Sprintf(" computed %d cached %d failed %d", s.Computed, s.Cached, s.Failed))
		})
	}

	start := time.Now()
	stats, runErr := orch.Run(ctx, reader)
	if bar != nil {
		bar.Finish()
	}

	for _, flush := range flushers {
		if err := flush(); err != nil && runErr == nil {
			runErr = err
		}
	}

	writeStats(os.Stderr, stats, time.Since(start), opts.negativeControl != 0)
	if vcfPath != "" {
		fmt.Fprintf(os.Stderr, "VCF output:                     %s\n", vcfPath)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("run aborted", zap.Error(runErr))
	}
	return runErr
}

// openLedger registers the run in the DuckDB ledger at path.
func openLedger(path, inputPath, genomeID string, window int) (*duckdb.Recorder, func(), error) {
	store, err := duckdb.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	fp, err := duckdb.StatFile(inputPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if prev, err := store.PreviousRuns(fp); err == nil && len(prev) > 0 {
		logger.Info("input already processed in an earlier run",
			zap.String("run_id", prev[0].ID),
			zap.Time("started_at", prev[0].StartedAt),
			zap.Int("runs", len(prev)))
	}

	run, err := store.BeginRun(fp, genomeID, window)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("recording run", zap.String("ledger", path), zap.String("run_id", run.ID))

	return store.NewRecorder(run), func() { store.Close() }, nil
}

// newRunProgress counts the selected records up front so the bar has a
// total; stdin input gets a counter without one.
func newRunProgress(inputPath, format string, opts variant.Options) *pb.ProgressBar {
	total := 0
	if inputPath != "-" {
		if n, err := variant.CountRecords(inputPath, format, opts); err == nil {
			total = n
		}
	}

	bar := pb.New(total)
	bar.Output = os.Stderr
	bar.ShowSpeed = true
	bar.Prefix("variants ")
	return bar.Start()
}

// writeStats prints the final statistics table.
func writeStats(w io.Writer, s pipeline.Statistics, elapsed time.Duration, controls bool) {
	rule := "======================================================================"
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "FINAL STATISTICS")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total variants:                 %d\n", s.Total())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Variants:")
	fmt.Fprintf(w, "  Newly computed:               %d (ran model)\n", s.Computed)
	fmt.Fprintf(w, "  Loaded from cache:            %d (already computed)\n", s.Cached)
	fmt.Fprintf(w, "  Failed:                       %d\n", s.Failed)

	if controls {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Negative controls:")
		fmt.Fprintf(w, "  Newly computed:               %d\n", s.ControlsComputed)
		fmt.Fprintf(w, "  Loaded from cache:            %d\n", s.ControlsCached)
		fmt.Fprintf(w, "  Failed:                       %d\n", s.ControlsFailed)
	}

	if len(s.FailureReasons) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures by reason:")
		for _, reason := range sortedKeys(s.FailureReasons) {
			fmt.Fprintf(w, "  %-30s%d\n", reason+":", s.FailureReasons[reason])
		}
	}

	secs := elapsed.Seconds()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total time:                     %.1f seconds (%.1f minutes)\n", secs, secs/60)
	if successful := s.Computed + s.Cached; successful > 0 && secs > 0 {
		fmt.Fprintf(w, "Overall variant rate:           %.2f variants/second\n", float64(successful)/secs)
	}
	if s.Computed > 0 && secs > 0 {
		fmt.Fprintf(w, "New computation rate:           %.2f variants/second\n", float64(s.Computed)/secs)
		fmt.Fprintf(w, "Time per new variant:           %.2f seconds\n", secs/float64(s.Computed))
	}
	fmt.Fprintln(w, rule)
}
