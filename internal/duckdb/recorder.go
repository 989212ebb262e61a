package duckdb

import (
	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/pipeline"
)

// defaultBatchSize is the number of outcomes buffered per Appender flush.
const defaultBatchSize = 1000

// Recorder writes pipeline outcomes for one run to the ledger.
type Recorder struct {
	store   *Store
	runID   string
	pending []VariantResult
	batch   int
}

// NewRecorder creates a recorder for run.
func (s *Store) NewRecorder(run Run) *Recorder {
	return &Recorder{store: s, runID: run.ID, batch: defaultBatchSize}
}

// Record buffers o and writes the buffer when it is full.
func (r *Recorder) Record(o pipeline.Outcome) error {
	r.pending = append(r.pending, r.result(o))
	if len(r.pending) >= r.batch {
		return r.Flush()
	}
	return nil
}

// Flush writes buffered outcomes.
func (r *Recorder) Flush() error {
	if err := r.store.WriteVariantResults(r.pending); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	return nil
}

func (r *Recorder) result(o pipeline.Outcome) VariantResult {
	vr := VariantResult{
		RunID:     r.runID,
		Seq:       int64(o.Seq),
		Kind:      string(o.Kind),
		Chrom:     o.Chrom,
		Pos:       o.Pos,
		ID:        o.ID,
		RefAllele: o.Pair.RefAllele,
		Status:    string(o.Status),
		Reason:    o.Reason,
	}
	if o.Record != nil {
		vr.EffectAllele = o.Record.EffectAllele
		vr.NonEffectAllele = o.Record.NonEffectAllele
	}
	if o.Pair.Effect != "" {
		vr.EffectKey = cache.Key(o.Pair.Effect)
		vr.NonEffectKey = cache.Key(o.Pair.NonEffect)
	}
	return vr
}
