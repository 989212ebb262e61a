package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/inodb/vibe-varseq/internal/duckdb"
	"github.com/inodb/vibe-varseq/internal/output"
	"github.com/inodb/vibe-varseq/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	ctx := context.Background()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{"success", ctx, nil, ExitSuccess},
		{"error", ctx, errors.New("boom"), ExitError},
		{"usage", ctx, &usageError{errors.New("accepts 1 arg(s)")}, ExitUsage},
		{"wrapped usage", ctx, fmt.Errorf("run: %w", &usageError{errors.New("bad flag")}), ExitUsage},
		{"unknown command", ctx, errors.New(`unknown command "frob" for "vibe-varseq"`), ExitUsage},
		{"interrupted", cancelled, nil, ExitInterrupted},
		{"cancelled error", ctx, fmt.Errorf("pipeline: %w", context.Canceled), ExitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.ctx, tt.err))
		})
	}
}

func TestRootCmd_UsageErrors(t *testing.T) {
	t.Cleanup(viper.Reset)
	cfgFile = ""

	root := newRootCmd()
	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitUsage, exitCode(context.Background(), err))

	root = newRootCmd()
	root.SetArgs([]string{"cache", "stats", "--no-such-flag"})
	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitUsage, exitCode(context.Background(), err))
}

func TestWriteStats(t *testing.T) {
	stats := pipeline.Statistics{
		Computed:         10,
		Cached:           5,
		Failed:           2,
		ControlsComputed: 9,
		ControlsCached:   5,
		ControlsFailed:   3,
		FailureReasons: map[string]int{
			"variant:fetch":           1,
			"variant:allele_mismatch": 1,
			"control:fetch":           3,
		},
	}

	var buf bytes.Buffer
	writeStats(&buf, stats, 30*time.Second, true)
	out := buf.String()

	assert.Contains(t, out, "Total variants:                 17")
	assert.Contains(t, out, "Newly computed:               10 (ran model)")
	assert.Contains(t, out, "Loaded from cache:            5 (already computed)")
	assert.Contains(t, out, "Negative controls:")
	assert.Contains(t, out, "Overall variant rate:           0.50 variants/second")
	assert.Contains(t, out, "Time per new variant:           3.00 seconds")

	// reasons are sorted
	assert.Less(t,
		bytes.Index(buf.Bytes(), []byte("control:fetch")),
		bytes.Index(buf.Bytes(), []byte("variant:allele_mismatch")))

	buf.Reset()
	writeStats(&buf, pipeline.Statistics{Cached: 3}, time.Second, false)
	assert.NotContains(t, buf.String(), "Negative controls:")
	assert.NotContains(t, buf.String(), "New computation rate")
	assert.NotContains(t, buf.String(), "Failures by reason")
}

func TestReadSequence(t *testing.T) {
	dir := t.TempDir()

	fasta := filepath.Join(dir, "seq.fa")
	require.NoError(t, os.WriteFile(fasta, []byte(">window\nacgt\nNNAC\n>second\nTTTT\n"), 0644))
	seq, err := readSequence(fasta)
	require.NoError(t, err)
	assert.Equal(t, "ACGTNNAC", seq)

	bare := filepath.Join(dir, "seq.txt")
	require.NoError(t, os.WriteFile(bare, []byte("  GATTACA \n"), 0644))
	seq, err = readSequence(bare)
	require.NoError(t, err)
	assert.Equal(t, "GATTACA", seq)

	empty := filepath.Join(dir, "empty.fa")
	require.NoError(t, os.WriteFile(empty, []byte(">nothing\n"), 0644))
	_, err = readSequence(empty)
	assert.Error(t, err)

	_, err = readSequence(filepath.Join(dir, "missing.fa"))
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "3.0 GB", formatSize(3<<30))
}

func TestGenomeFastaURL(t *testing.T) {
	assert.Equal(t,
		"https://hgdownload.soe.ucsc.edu/goldenPath/hg19/bigZips/hg19.fa.gz",
		genomeFastaURL(goldenPathURL, "hg19"))
	assert.Equal(t,
		"http://mirror/gp/hg38/bigZips/hg38.fa.gz",
		genomeFastaURL("http://mirror/gp/", "hg38"))
}

func TestDownloadGenome(t *testing.T) {
	fasta := ">chr1\nACGTACGTAC\n>chr2\nGGGG\n"
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(fasta))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/hg19/bigZips/hg19.fa.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(gz.Bytes())
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "hg19.fa")
	var out bytes.Buffer
	require.NoError(t, downloadGenome(context.Background(), genomeFastaURL(srv.URL, "hg19"), dest, &out))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, fasta, string(data))
	_, err = os.Stat(dest + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// existing file is not downloaded again
	out.Reset()
	require.NoError(t, downloadGenome(context.Background(), genomeFastaURL(srv.URL, "hg19"), dest, &out))
	assert.Contains(t, out.String(), "already exists")
	assert.Equal(t, int32(1), requests.Load())

	missing := filepath.Join(t.TempDir(), "hg38.fa")
	err = downloadGenome(context.Background(), genomeFastaURL(srv.URL, "hg38"), missing, &out)
	assert.ErrorContains(t, err, "404")
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigSetGet(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
	viper.Reset()
	cfgFile = filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	require.NoError(t, runConfigSet(&out, "model.url", "http://localhost:8000"))
	require.NoError(t, runConfigSet(&out, "window", "16"))
	require.NoError(t, runConfigSet(&out, "progress", "off"))
	assert.Contains(t, out.String(), "Set window = 16 in "+cfgFile)

	data, err := os.ReadFile(cfgFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "url: http://localhost:8000")

	out.Reset()
	require.NoError(t, runConfigGet(&out, "window"))
	assert.Equal(t, "16\n", out.String())

	out.Reset()
	require.NoError(t, runConfigShow(&out))
	assert.Contains(t, out.String(), "progress: false")

	assert.Error(t, runConfigGet(&out, "no.such.key"))

	// a fresh viper picks the written file back up
	viper.Reset()
	require.NoError(t, initConfig())
	assert.Equal(t, 16, viper.GetInt("window"))
	assert.Equal(t, "http://localhost:8000", viper.GetString("model.url"))
}

func TestInitConfig_Defaults(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
	viper.Reset()
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, initConfig())
	assert.Equal(t, "hg19", viper.GetString("genome"))
	assert.Equal(t, "ucsc:hg38", viper.GetString("genomes.hg38"))
	assert.Equal(t, 196608, viper.GetInt("window"))

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, initConfig())
}

func TestExportRuns(t *testing.T) {
	store, err := duckdb.Open(filepath.Join(t.TempDir(), "ledger.duckdb"))
	require.NoError(t, err)
	defer store.Close()

	input := duckdb.FileFingerprint{Path: "kunkle.txt", Size: 10, ModTime: time.Unix(1700000000, 0)}
	first, err := store.BeginRun(input, "hg19", 16)
	require.NoError(t, err)
	second, err := store.BeginRun(input, "hg38", 16)
	require.NoError(t, err)

	require.NoError(t, store.WriteVariantResults([]duckdb.VariantResult{
		{RunID: first.ID, Seq: 0, Kind: "variant", Chrom: "chr1", Pos: 100, ID: "rs1",
			EffectAllele: "T", NonEffectAllele: "C", RefAllele: "C", Status: "computed"},
		{RunID: second.ID, Seq: 0, Kind: "variant", Chrom: "chr1", Pos: 200, ID: "rs2",
			EffectAllele: "A", NonEffectAllele: "G", Status: "failed", Reason: "fetch"},
	}))

	path := filepath.Join(t.TempDir(), "runs.xlsx")
	n, err := exportRuns(store, nil, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 3)

	n, err = exportRuns(store, []string{second.ID}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = exportRuns(store, []string{"no-such-run"}, path)
	assert.Error(t, err)
}

func TestCompareRuns(t *testing.T) {
	store, err := duckdb.Open(filepath.Join(t.TempDir(), "ledger.duckdb"))
	require.NoError(t, err)
	defer store.Close()

	input := duckdb.FileFingerprint{Path: "kunkle.txt", Size: 10, ModTime: time.Unix(1700000000, 0)}
	first, err := store.BeginRun(input, "hg19", 16)
	require.NoError(t, err)
	second, err := store.BeginRun(input, "hg19", 16)
	require.NoError(t, err)

	row := duckdb.VariantResult{Kind: "variant", Chrom: "chr1", Pos: 100, ID: "rs1",
		EffectAllele: "T", NonEffectAllele: "C", RefAllele: "C", Status: "computed",
		EffectKey: "aa", NonEffectKey: "bb"}
	rowA, rowB := row, row
	rowA.RunID, rowB.RunID = first.ID, second.ID
	rowB.Status = "cached"
	require.NoError(t, store.WriteVariantResults([]duckdb.VariantResult{rowA, rowB}))

	var buf bytes.Buffer
	v := output.NewValidationWriter(&buf, true)
	require.NoError(t, compareRuns(store, first.ID[:8], second.ID, v))
	total, matches, _, _ := v.Summary()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, matches)

	err = compareRuns(store, "zzzz", second.ID, output.NewValidationWriter(&buf, false))
	assert.ErrorContains(t, err, "no run matches")
	err = compareRuns(store, "", second.ID, output.NewValidationWriter(&buf, false))
	assert.ErrorContains(t, err, "ambiguous")
}

func TestCacheStats_DoesNotCreateCacheDir(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
	viper.Reset()
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())

	dir := filepath.Join(t.TempDir(), "nonexistent")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"cache", "stats", "--cache-dir", dir})
	root.SetOut(&out)
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "DNA windows:    0")
	assert.Contains(t, out.String(), "Model results:  0")
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "cache stats created %s", dir)
}

func TestParsePosition(t *testing.T) {
	chrom, pos, err := parsePosition("19:44,908,684")
	require.NoError(t, err)
	assert.Equal(t, "chr19", chrom)
	assert.Equal(t, int64(44908684), pos)

	chrom, pos, err = parsePosition("chrX:100")
	require.NoError(t, err)
	assert.Equal(t, "chrX", chrom)
	assert.Equal(t, int64(100), pos)

	for _, bad := range []string{"chr1", ":10", "chr1:0", "chr1:abc"} {
		_, _, err := parsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestLookupVariant(t *testing.T) {
	store, err := duckdb.Open(filepath.Join(t.TempDir(), "ledger.duckdb"))
	require.NoError(t, err)
	defer store.Close()

	input := duckdb.FileFingerprint{Path: "kunkle.txt", Size: 10, ModTime: time.Unix(1700000000, 0)}
	run, err := store.BeginRun(input, "hg19", 16)
	require.NoError(t, err)

	require.NoError(t, store.WriteVariantResults([]duckdb.VariantResult{
		{RunID: run.ID, Seq: 0, Kind: "variant", Chrom: "chr1", Pos: 100, ID: "rs1",
			EffectAllele: "T", NonEffectAllele: "C", RefAllele: "C", Status: "computed",
			EffectKey: "0123456789abcdef", NonEffectKey: "bb"},
		{RunID: run.ID, Seq: 1, Kind: "variant", Chrom: "chr1", Pos: 200, ID: "rs2",
			EffectAllele: "G", NonEffectAllele: "A", Status: "failed", Reason: "ref_mismatch"},
	}))

	var buf bytes.Buffer
	n, err := lookupVariant(store, "chr1", 100, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), run.ID[:8])
	assert.Contains(t, buf.String(), "rs1")
	assert.Contains(t, buf.String(), "C>T")
	assert.Contains(t, buf.String(), "01234567")
	assert.NotContains(t, buf.String(), "rs2")

	buf.Reset()
	n, err = lookupVariant(store, "chr2", 100, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())
}
