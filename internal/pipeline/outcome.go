package pipeline

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/inodb/vibe-varseq/internal/allele"
	"github.com/inodb/vibe-varseq/internal/variant"
)

// ErrControl wraps every failure building or running a negative-control
// pair.
var ErrControl = errors.New("negative control")

// Kind distinguishes variant outcomes from negative-control outcomes.
type Kind string

const (
	KindVariant Kind = "variant"
	KindControl Kind = "control"
)

// Status is the result of processing one variant or control.
type Status string

const (
	StatusComputed Status = "computed"
	StatusCached   Status = "cached"
	StatusFailed   Status = "failed"
)

// Failure reasons.
const (
	ReasonParse          = "parse"
	ReasonFetch          = "fetch"
	ReasonAlleleMismatch = "allele_mismatch"
	ReasonLength         = "length"
	ReasonModel          = "model"
)

// Outcome is the typed result for one variant or one control.
type Outcome struct {
	Seq    int             // input order of the parent variant
	Kind   Kind
	Record *variant.Record // parent variant; nil for unparseable lines
	Chrom  string          // chromosome evaluated (lookup naming)
	Pos    int64           // 1-based position evaluated
	ID     string          // variant ID, "<id>_control" for controls
	Pair   allele.Pair     // zero when Status is StatusFailed before building
	Status Status
	Reason string // failure reason, empty on success
	Err    error
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func (o *Outcome) fail(reason string, err error) {
	o.Status = StatusFailed
	o.Reason = reason
	if o.Kind == KindControl {
		err = fmt.Errorf("%w: %w", ErrControl, err)
	}
	o.Err = err
}

// buildReason classifies an allele.Builder error.
func buildReason(err error) string {
	if errors.Is(err, allele.ErrAlleleMismatch) {
		return ReasonAlleleMismatch
	}
	return ReasonLength
}

// Statistics are the aggregate counters for a run.
type Statistics struct {
	Computed int
	Cached   int
	Failed   int

	ControlsComputed int
	ControlsCached   int
	ControlsFailed   int

	// FailureReasons counts failures of both kinds by reason.
	FailureReasons map[string]int
}

// Total returns the number of variants processed.
func (s Statistics) Total() int {
	return s.Computed + s.Cached + s.Failed
}

// ControlsTotal returns the number of controls processed.
func (s Statistics) ControlsTotal() int {
	return s.ControlsComputed + s.ControlsCached + s.ControlsFailed
}

func (s *Statistics) add(o Outcome) {
	var computed, cached, failed *int
	if o.Kind == KindControl {
		computed, cached, failed = &s.ControlsComputed, &s.ControlsCached, &s.ControlsFailed
	} else {
		computed, cached, failed = &s.Computed, &s.Cached, &s.Failed
	}

	switch o.Status {
	case StatusComputed:
		*computed++
	case StatusCached:
		*cached++
	case StatusFailed:
		*failed++
		if s.FailureReasons == nil {
			s.FailureReasons = make(map[string]int)
		}
		s.FailureReasons[string(o.Kind)+":"+o.Reason]++
	}
}

// clone returns a copy safe to hand to callbacks.
func (s Statistics) clone() Statistics {
	if s.FailureReasons != nil {
		s.FailureReasons = lo.Assign(s.FailureReasons)
	}
	return s
}
