package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-varseq/internal/allele"
	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/genome"
	"github.com/inodb/vibe-varseq/internal/model"
	"github.com/inodb/vibe-varseq/internal/tensor"
	"github.com/inodb/vibe-varseq/internal/variant"
)

const testWindow = 16

// chr1 is ACGT repeated; the base at 1-based position p is chr1[p-1].
var chr1 = strings.Repeat("ACGT", 100)

type toyGenome struct{}

func (toyGenome) Fetch(_ context.Context, _, chrom string, start, end int64) (string, error) {
	if chrom != "chr1" || start < 0 || end > int64(len(chr1)) {
		return "", fmt.Errorf("%s:%d-%d out of range", chrom, start, end)
	}
	return chr1[start:end], nil
}

type sliceSource struct {
	items []any // *variant.Record or error
}

func (s *sliceSource) Next() (*variant.Record, error) {
	if len(s.items) == 0 {
		return nil, nil
	}
	item := s.items[0]
	s.items = s.items[1:]
	if err, ok := item.(error); ok {
		return nil, err
	}
	return item.(*variant.Record), nil
}

func records(recs ...*variant.Record) *sliceSource {
	s := &sliceSource{}
	for _, r := range recs {
		s.items = append(s.items, r)
	}
	return s
}

// countingPredictor wraps a Runner and remembers every sequence submitted.
type countingPredictor struct {
	runner *model.Runner
	mu     sync.Mutex
	seqs   []string
}

func (p *countingPredictor) Run(ctx context.Context, seq string) (tensor.Tensor, bool, error) {
	p.mu.Lock()
	p.seqs = append(p.seqs, seq)
	p.mu.Unlock()
	return p.runner.Run(ctx, seq)
}

func lengthModel(_ context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	out := tensor.New(1, 2)
	out.Data[0] = float32(x.Shape[1])
	return out, nil
}

type fixture struct {
	dir       string
	windows   *cache.DNACache
	results   *cache.ResultCache
	runner    *model.Runner
	predictor *countingPredictor
	builder   allele.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		windows: cache.NewDNACache(dir+"/dna", toyGenome{}, testWindow),
		results: cache.NewResultCache(dir + "/model"),
		builder: allele.NewBuilder(testWindow),
	}
	f.runner = model.NewRunner(func(context.Context) (model.Model, error) {
		return model.Func(lengthModel), nil
	}, f.results)
	f.predictor = &countingPredictor{runner: f.runner}
	return f
}

func (f *fixture) orchestrator(cfg Config) *Orchestrator {
	cfg.Genome = "toy"
	return New(cfg, f.windows, f.builder, f.predictor, f.results)
}

// precompute stores outputs for both sequences of rec.
func (f *fixture) precompute(t *testing.T, rec *variant.Record) allele.Pair {
	t.Helper()
	window, err := f.windows.GetOrFetch(context.Background(), genome.Region{Chrom: "chr1", Start: rec.Pos, End: rec.Pos}, "toy")
	require.NoError(t, err)
	pair, err := f.builder.Build(rec, window)
	require.NoError(t, err)
	require.True(t, f.results.Store(pair.Effect, tensor.New(1, 2)))
	require.True(t, f.results.Store(pair.NonEffect, tensor.New(1, 2)))
	return pair
}

// corrupt overwrites the cached outputs of both sequences of rec with
// bytes that are not a result record.
func (f *fixture) corrupt(t *testing.T, rec *variant.Record) allele.Pair {
	t.Helper()
	pair := f.precompute(t, rec)
	for _, seq := range []string{pair.Effect, pair.NonEffect} {
		path := filepath.Join(f.dir, "model", cache.Key(seq)+".npz.gz")
		require.NoError(t, os.WriteFile(path, []byte("not a record"), 0644))
	}
	return pair
}

type memRecorder struct {
	outcomes []Outcome
	err      error
}

func (r *memRecorder) Record(o Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return r.err
}

// Reference bases: pos 100 is T, 101 is A, 102 is C.
var (
	cachedSNP   = &variant.Record{Chrom: "1", Pos: 100, ID: "rs_cached", EffectAllele: "C", NonEffectAllele: "T"}
	newSNP      = &variant.Record{Chrom: "1", Pos: 101, ID: "rs_new", EffectAllele: "G", NonEffectAllele: "A"}
	mismatchSNP = &variant.Record{Chrom: "1", Pos: 102, ID: "rs_bad", EffectAllele: "A", NonEffectAllele: "G"}
)

func TestOrchestrator_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.precompute(t, cachedSNP)

	rec := &memRecorder{}
	o := f.orchestrator(Config{Workers: 2})
	o.AddRecorder(rec)

	stats, err := o.Run(context.Background(), records(cachedSNP, newSNP, mismatchSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.Cached)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.Total())
	assert.Equal(t, map[string]int{"variant:allele_mismatch": 1}, stats.FailureReasons)

	assert.Len(t, rec.outcomes, 3)
	byID := make(map[string]Outcome)
	for _, out := range rec.outcomes {
		byID[out.ID] = out
	}
	assert.Equal(t, StatusCached, byID["rs_cached"].Status)
	assert.Equal(t, StatusComputed, byID["rs_new"].Status)
	assert.Equal(t, "chr1", byID["rs_new"].Chrom)
	assert.Equal(t, "A", byID["rs_new"].Pair.RefAllele)
	assert.Equal(t, StatusFailed, byID["rs_bad"].Status)
	assert.ErrorIs(t, byID["rs_bad"].Err, allele.ErrAlleleMismatch)

	// Only the new variant's two sequences reached the model.
	assert.Equal(t, int64(2), f.runner.Predictions())
}

func TestOrchestrator_ResumeSkipsRunner(t *testing.T) {
	f := newFixture(t)
	pair := f.precompute(t, cachedSNP)

	stats, err := f.orchestrator(Config{Workers: 1, Resume: true}).Run(context.Background(), records(cachedSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Cached)
	assert.Zero(t, stats.Computed)
	assert.NotContains(t, f.predictor.seqs, pair.Effect)
	assert.NotContains(t, f.predictor.seqs, pair.NonEffect)
	assert.Empty(t, f.predictor.seqs)
	assert.Equal(t, model.Unloaded, f.runner.State())
}

func TestOrchestrator_WithoutResumeRunnerShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.precompute(t, cachedSNP)

	stats, err := f.orchestrator(Config{Workers: 1}).Run(context.Background(), records(cachedSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Cached)
	assert.Len(t, f.predictor.seqs, 2)
	assert.Zero(t, f.runner.Predictions())
}

func TestOrchestrator_UnreadableCacheIsRecomputed(t *testing.T) {
	for _, resume := range []bool{false, true} {
		t.Run(fmt.Sprintf("resume=%v", resume), func(t *testing.T) {
			f := newFixture(t)
			pair := f.corrupt(t, newSNP)

			stats, err := f.orchestrator(Config{Workers: 1, Resume: resume}).Run(context.Background(), records(newSNP))
			require.NoError(t, err)

			assert.Equal(t, 1, stats.Computed)
			assert.Zero(t, stats.Cached)
			assert.Equal(t, int64(2), f.runner.Predictions())

			// the records were rewritten, so the next resumed run skips the model
			assert.True(t, f.results.Has(pair.Effect))
			assert.True(t, f.results.Has(pair.NonEffect))
			again, err := f.orchestrator(Config{Workers: 1, Resume: true}).Run(context.Background(), records(newSNP))
			require.NoError(t, err)
			assert.Equal(t, 1, again.Cached)
			assert.Equal(t, int64(2), f.runner.Predictions())
		})
	}
}

func TestOrchestrator_RepeatRunIsCached(t *testing.T) {
	f := newFixture(t)

	first, err := f.orchestrator(Config{Workers: 3}).Run(context.Background(), records(cachedSNP, newSNP))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Computed)

	second, err := f.orchestrator(Config{Workers: 3, Resume: true}).Run(context.Background(), records(cachedSNP, newSNP))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Cached)
	assert.Zero(t, second.Computed)
	assert.Equal(t, int64(4), f.runner.Predictions())
}

func TestOrchestrator_Controls(t *testing.T) {
	f := newFixture(t)
	rec := &memRecorder{}
	o := f.orchestrator(Config{Workers: 2, ControlOffset: 5})
	o.AddRecorder(rec)

	stats, err := o.Run(context.Background(), records(newSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.ControlsComputed)
	assert.Equal(t, 1, stats.ControlsTotal())

	require.Len(t, rec.outcomes, 2)
	ctrl := rec.outcomes[1]
	assert.Equal(t, KindControl, ctrl.Kind)
	assert.Equal(t, "rs_new_control", ctrl.ID)
	assert.Equal(t, int64(106), ctrl.Pos)
	assert.Equal(t, "C", ctrl.Pair.RefAllele)
}

func TestOrchestrator_ZeroControlOffsetDisablesControls(t *testing.T) {
	f := newFixture(t)
	rec := &memRecorder{}
	o := f.orchestrator(Config{Workers: 1, ControlOffset: 0})
	o.AddRecorder(rec)

	stats, err := o.Run(context.Background(), records(newSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Computed)
	assert.Zero(t, stats.ControlsTotal())
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindVariant, rec.outcomes[0].Kind)
	assert.Equal(t, int64(2), f.runner.Predictions())
}

func TestOrchestrator_ControlFailureIsIndependent(t *testing.T) {
	f := newFixture(t)
	rec := &memRecorder{}
	o := f.orchestrator(Config{Workers: 1, ControlOffset: 10_000})
	o.AddRecorder(rec)

	stats, err := o.Run(context.Background(), records(newSNP, mismatchSNP))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.ControlsFailed)
	assert.Equal(t, 2, stats.FailureReasons["control:fetch"])

	for _, out := range rec.outcomes {
		if out.Kind == KindControl {
			assert.ErrorIs(t, out.Err, ErrControl)
		}
	}
}

func TestOrchestrator_NegativeControlBeforeChromStart(t *testing.T) {
	f := newFixture(t)

	stats, err := f.orchestrator(Config{Workers: 1, ControlOffset: -1000}).Run(context.Background(), records(newSNP))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.ControlsFailed)
}

func TestOrchestrator_ParseErrorCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	src := &sliceSource{items: []any{
		&variant.ParseError{Line: 3, Message: "invalid position: x"},
		newSNP,
	}}

	stats, err := f.orchestrator(Config{Workers: 2}).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.FailureReasons["variant:parse"])
}

func TestOrchestrator_FetchFailure(t *testing.T) {
	f := newFixture(t)
	offChrom := &variant.Record{Chrom: "2", Pos: 10, ID: "rs_chr2", EffectAllele: "A", NonEffectAllele: "C"}

	stats, err := f.orchestrator(Config{Workers: 1}).Run(context.Background(), records(offChrom))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailureReasons["variant:fetch"])
}

func TestOrchestrator_ModelFailure(t *testing.T) {
	f := newFixture(t)
	f.runner = model.NewRunner(func(context.Context) (model.Model, error) {
		return nil, errors.New("no GPU")
	}, f.results)
	f.predictor.runner = f.runner

	stats, err := f.orchestrator(Config{Workers: 1}).Run(context.Background(), records(newSNP))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailureReasons["variant:model"])
}

func TestOrchestrator_ReadError(t *testing.T) {
	f := newFixture(t)
	src := &sliceSource{items: []any{newSNP, errors.New("disk on fire")}}

	_, err := f.orchestrator(Config{Workers: 1}).Run(context.Background(), src)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestOrchestrator_RecorderErrorAborts(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Config{Workers: 1})
	o.AddRecorder(&memRecorder{err: errors.New("disk full")})

	_, err := o.Run(context.Background(), records(newSNP, cachedSNP))
	assert.ErrorContains(t, err, "disk full")
}

func TestOrchestrator_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orchestrator(Config{Workers: 2}).Run(ctx, records(newSNP, cachedSNP))
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingSource never returns from Next until released.
type blockingSource struct {
	release chan struct{}
}

func (s *blockingSource) Next() (*variant.Record, error) {
	<-s.release
	return nil, nil
}

func TestOrchestrator_CancelWhileSourceBlocks(t *testing.T) {
	f := newFixture(t)
	src := &blockingSource{release: make(chan struct{})}
	defer close(src.release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.orchestrator(Config{Workers: 2}).Run(ctx, src)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestOrchestrator_Progress(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Config{Workers: 4, QueueSize: 1})

	var snapshots []Statistics
	o.OnProgress(func(s Statistics) { snapshots = append(snapshots, s) })

	var src []*variant.Record
	for i := range 40 {
		base := chr1[99+i]
		src = append(src, &variant.Record{
			Chrom: "1", Pos: int64(100 + i), ID: fmt.Sprintf("rs%d", i),
			EffectAllele: "N", NonEffectAllele: string(base),
		})
	}

	stats, err := o.Run(context.Background(), records(src...))
	require.NoError(t, err)
	// chr1 has period 4, so later windows repeat earlier ones and hit the cache.
	assert.Equal(t, 40, stats.Computed+stats.Cached)
	require.Len(t, snapshots, 40)
	for i, s := range snapshots {
		assert.Equal(t, i+1, s.Total())
	}
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}
