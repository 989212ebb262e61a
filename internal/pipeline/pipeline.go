// Package pipeline runs variants through sequence retrieval and the model:
// a parallel retrieval stage feeding a single serialized model stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/vibe-varseq/internal/allele"
	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/genome"
	"github.com/inodb/vibe-varseq/internal/tensor"
	"github.com/inodb/vibe-varseq/internal/variant"
)

// Source yields variant records. Next returns nil, nil at the end; a
// *variant.ParseError is counted as a failed variant and reading continues.
type Source interface {
	Next() (*variant.Record, error)
}

// WindowFetcher returns the normalized reference window around a region.
type WindowFetcher interface {
	GetOrFetch(ctx context.Context, r genome.Region, genomeID string) (string, error)
}

// Predictor runs the model on one sequence. cached reports whether the
// output came from the result cache.
type Predictor interface {
	Run(ctx context.Context, seq string) (out tensor.Tensor, cached bool, err error)
}

// Recorder receives every outcome, in arrival order, from the model stage.
// A Recorder error aborts the run.
type Recorder interface {
	Record(o Outcome) error
}

// Config controls a run.
type Config struct {
	Genome        string
	Workers       int   // retrieval workers; 0 means DefaultWorkers()
	QueueSize     int   // prepared variants buffered for the model stage; 0 means 2*Workers
	Resume        bool  // skip the model for variants whose outputs are all cached
	ControlOffset int64 // negative-control offset in bases; 0 disables controls
}

// DefaultWorkers leaves two cores for the model stage and the runtime.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-2, 1)
}

// Orchestrator coordinates a batch run.
type Orchestrator struct {
	cfg       Config
	windows   WindowFetcher
	builder   allele.Builder
	runner    Predictor
	results   *cache.ResultCache
	recorders []Recorder
	progress  func(Statistics)
	logger    *zap.Logger
}

// New creates an orchestrator. Under Resume, results is consulted before
// the runner to skip fully cached variants; it must be the cache the
// runner reads and writes.
func New(cfg Config, windows WindowFetcher, builder allele.Builder, runner Predictor, results *cache.ResultCache) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 2 * cfg.Workers
	}
	return &Orchestrator{
		cfg:     cfg,
		windows: windows,
		builder: builder,
		runner:  runner,
		results: results,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for per-variant diagnostics.
func (o *Orchestrator) SetLogger(l *zap.Logger) {
	o.logger = l
}

// AddRecorder registers an outcome recorder.
func (o *Orchestrator) AddRecorder(r Recorder) {
	o.recorders = append(o.recorders, r)
}

// OnProgress registers fn to be called with a snapshot of the statistics
// after each variant (and its control) completes.
func (o *Orchestrator) OnProgress(fn func(Statistics)) {
	o.progress = fn
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

type job struct {
	seq    int
	rec    *variant.Record
	parseE error
}

type readResult struct {
	rec *variant.Record
	err error
}

type prepared struct {
	variant Outcome
	control *Outcome
}

// Run processes every record from src. Per-variant failures are counted,
// never returned. The returned error is non-nil only for input read
// errors, recorder errors, or cancellation; the statistics gathered so far
// are returned either way.
//
// On cancellation Run returns without waiting for a pending src.Next call,
// which finishes on its own goroutine.
func (o *Orchestrator) Run(ctx context.Context, src Source) (Statistics, error) {
	var stats Statistics

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, o.cfg.Workers)
	ready := make(chan prepared, o.cfg.QueueSize)

	reads := o.read(gctx, src)
	g.Go(func() error {
		defer close(jobs)
		return o.produce(gctx, reads, jobs)
	})

	var wg sync.WaitGroup
	wg.Add(o.cfg.Workers)
	for range o.cfg.Workers {
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				p := o.prepare(gctx, j)
				select {
				case ready <- p:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(ready)
	}()

	g.Go(func() error {
		for p := range ready {
			if err := o.consume(gctx, p, &stats); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return stats, err
}

// read calls src.Next on a goroutine of its own, outside the errgroup, so
// a source blocked on slow input cannot hold up cancellation. The goroutine
// exits after the last record or once ctx is done and Next has returned.
func (o *Orchestrator) read(ctx context.Context, src Source) <-chan readResult {
	reads := make(chan readResult)
	go func() {
		defer close(reads)
		for {
			rec, err := src.Next()
			select {
			case reads <- readResult{rec: rec, err: err}:
			case <-ctx.Done():
				return
			}
			var pe *variant.ParseError
			if rec == nil && !errors.As(err, &pe) {
				return
			}
		}
	}()
	return reads
}

func (o *Orchestrator) produce(ctx context.Context, reads <-chan readResult, jobs chan<- job) error {
	for seq := 0; ; seq++ {
		var r readResult
		select {
		case r = <-reads:
		case <-ctx.Done():
			return ctx.Err()
		}

		var pe *variant.ParseError
		switch {
		case errors.As(r.err, &pe):
			// handled per variant below
		case r.err != nil:
			return fmt.Errorf("read variants: %w", r.err)
		case r.rec == nil:
			return nil
		}

		select {
		case jobs <- job{seq: seq, rec: r.rec, parseE: r.err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// prepare runs the retrieval stage for one variant.
func (o *Orchestrator) prepare(ctx context.Context, j job) prepared {
	out := Outcome{Seq: j.seq, Kind: KindVariant, Record: j.rec}
	if j.parseE != nil {
		out.fail(ReasonParse, j.parseE)
		return prepared{variant: out}
	}

	rec := j.rec
	out.Chrom = rec.LookupChrom()
	out.Pos = rec.Pos
	out.ID = rec.Label()

	window, err := o.fetch(ctx, out.Chrom, rec.Pos)
	if err != nil {
		out.fail(ReasonFetch, err)
	} else if out.Pair, err = o.builder.Build(rec, window); err != nil {
		out.fail(buildReason(err), err)
	}

	p := prepared{variant: out}
	if o.cfg.ControlOffset != 0 {
		ctrl := o.prepareControl(ctx, j)
		p.control = &ctrl
	}
	return p
}

// prepareControl builds the negative-control pair at pos+offset. It does
// not depend on the parent variant's outcome.
func (o *Orchestrator) prepareControl(ctx context.Context, j job) Outcome {
	rec := j.rec
	ctrl := Outcome{
		Seq:    j.seq,
		Kind:   KindControl,
		Record: rec,
		Chrom:  rec.LookupChrom(),
		Pos:    rec.Pos + o.cfg.ControlOffset,
		ID:     rec.Label() + "_control",
	}
	if ctrl.Pos < 1 {
		ctrl.fail(ReasonFetch, fmt.Errorf("position %d out of range", ctrl.Pos))
		return ctrl
	}

	window, err := o.fetch(ctx, ctrl.Chrom, ctrl.Pos)
	if err != nil {
		ctrl.fail(ReasonFetch, err)
		return ctrl
	}
	if ctrl.Pair, err = o.builder.BuildControl(rec, ctrl.ID, window); err != nil {
		ctrl.fail(buildReason(err), err)
	}
	return ctrl
}

// fetch returns the window centered on the 1-based pos.
func (o *Orchestrator) fetch(ctx context.Context, chrom string, pos int64) (string, error) {
	return o.windows.GetOrFetch(ctx, genome.Region{Chrom: chrom, Start: pos, End: pos}, o.cfg.Genome)
}

// consume runs the model stage for one prepared variant.
func (o *Orchestrator) consume(ctx context.Context, p prepared, stats *Statistics) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outcomes := []*Outcome{&p.variant}
	if p.control != nil {
		outcomes = append(outcomes, p.control)
	}

	for _, out := range outcomes {
		if !out.Failed() {
			if err := o.predict(ctx, out); err != nil {
				return err
			}
		}
		if out.Failed() {
			o.logger.Debug("variant failed",
				zap.String("kind", string(out.Kind)),
				zap.String("chrom", out.Chrom),
				zap.Int64("pos", out.Pos),
				zap.String("id", out.ID),
				zap.String("reason", out.Reason),
				zap.Error(out.Err))
		}

		stats.add(*out)
		for _, r := range o.recorders {
			if err := r.Record(*out); err != nil {
				return fmt.Errorf("record %s: %w", out.ID, err)
			}
		}
	}

	if o.progress != nil {
		o.progress(stats.clone())
	}
	return nil
}

// predict runs both sequences of out through the model and sets its
// status. The outcome is cached only when the runner served both sequences
// from the result cache. Only cancellation is returned as an error.
func (o *Orchestrator) predict(ctx context.Context, out *Outcome) error {
	seqs := [2]string{out.Pair.Effect, out.Pair.NonEffect}

	if o.cfg.Resume && o.results.Has(seqs[0]) && o.results.Has(seqs[1]) {
		out.Status = StatusCached
		return nil
	}

	cached := true
	for _, seq := range seqs {
		_, hit, err := o.runner.Run(ctx, seq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out.fail(ReasonModel, err)
			return nil
		}
		cached = cached && hit
	}

	if cached {
		out.Status = StatusCached
	} else {
		out.Status = StatusComputed
	}
	return nil
}
