// Package model runs the sequence model over allele sequences, memoizing
// outputs in the result cache.
package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/tensor"
)

// Model is a loaded sequence-to-function model. Implementations need not
// be safe for concurrent use.
type Model interface {
	// Predict returns the output tensor for a one-hot encoded sequence of
	// shape [1, length, 4].
	Predict(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error)
}

// Func adapts a function to the Model interface.
type Func func(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	return f(ctx, x)
}

// Loader brings a model into memory. It is called at most once per
// successful load.
type Loader func(ctx context.Context) (Model, error)

// State is the lifecycle state of a Runner's model handle.
type State int32

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Runner owns the single in-memory model instance. The model is loaded on
// the first cache miss and kept for the Runner's lifetime. A failed load
// leaves the Runner Unloaded so the next miss retries.
type Runner struct {
	load    Loader
	results *cache.ResultCache
	logger  *zap.Logger

	mu    sync.Mutex // serializes loading and inference
	model Model
	state atomic.Int32

	predictions atomic.Int64
}

// NewRunner creates a runner that loads its model with load and memoizes
// outputs in results.
func NewRunner(load Loader, results *cache.ResultCache) *Runner {
	return &Runner{
		load:    load,
		results: results,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for load and inference diagnostics.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
}

// State returns the current model state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Predictions returns how many times the model itself has been invoked.
func (r *Runner) Predictions() int64 {
	return r.predictions.Load()
}

// Run returns the model output for seq. A cached result is returned
// without touching the model; cached reports which path was taken.
func (r *Runner) Run(ctx context.Context, seq string) (out tensor.Tensor, cached bool, err error) {
	if out, ok := r.results.Lookup(seq); ok {
		return out, true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return tensor.Tensor{}, false, err
	}

	out, err = r.model.Predict(ctx, tensor.OneHot(seq))
	if err != nil {
		return tensor.Tensor{}, false, fmt.Errorf("predict: %w", err)
	}
	if err := out.Validate(); err != nil {
		return tensor.Tensor{}, false, fmt.Errorf("predict: %w", err)
	}
	r.predictions.Add(1)

	if !r.results.Store(seq, out) {
		r.logger.Debug("model output not persisted", zap.String("key", cache.Key(seq)))
	}
	return out, false, nil
}

// ensureLoaded loads the model if needed. Callers hold r.mu.
func (r *Runner) ensureLoaded(ctx context.Context) error {
	if r.State() == Ready {
		return nil
	}

	r.state.Store(int32(Loading))
	r.logger.Info("loading model")
	start := time.Now()

	m, err := r.load(ctx)
	if err != nil {
		r.state.Store(int32(Unloaded))
		return fmt.Errorf("load model: %w", err)
	}

	r.model = m
	r.state.Store(int32(Ready))
	r.logger.Info("model loaded", zap.Duration("elapsed", time.Since(start)))
	return nil
}
