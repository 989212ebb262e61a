package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/inodb/vibe-varseq/internal/duckdb"
)

// ResultPair holds the ledger rows of one variant or control in two runs.
// Either side is nil when the variant is missing from that run.
type ResultPair struct {
	A, B *duckdb.VariantResult
}

type resultKey struct {
	kind, chrom, id, effect, nonEffect string
	pos                                int64
}

func keyOf(r *duckdb.VariantResult) resultKey {
	return resultKey{r.Kind, r.Chrom, r.ID, r.EffectAllele, r.NonEffectAllele, r.Pos}
}

// PairResults matches the rows of two runs by kind, locus, ID and alleles,
// in the order of a followed by rows only present in b.
func PairResults(a, b []duckdb.VariantResult) []ResultPair {
	index := make(map[resultKey]int, len(b))
	for i := range b {
		index[keyOf(&b[i])] = i
	}

	pairs := make([]ResultPair, 0, len(a))
	used := make([]bool, len(b))
	for i := range a {
		p := ResultPair{A: &a[i]}
		if j, ok := index[keyOf(&a[i])]; ok && !used[j] {
			p.B = &b[j]
			used[j] = true
		}
		pairs = append(pairs, p)
	}
	for j := range b {
		if !used[j] {
			pairs = append(pairs, ResultPair{B: &b[j]})
		}
	}
	return pairs
}

// ValidationWriter compares the outcomes of two runs over the same input.
// Successful rows match when both sequence keys agree; failed rows match
// when both failed for the same reason.
type ValidationWriter struct {
	w          *tabwriter.Writer
	matches    int
	mismatches int
	missing    int
	total      int
	showAll    bool // if false, only show mismatches
}

// NewValidationWriter creates a new validation output writer.
func NewValidationWriter(w io.Writer, showAll bool) *ValidationWriter {
	return &ValidationWriter{
		w:       tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		showAll: showAll,
	}
}

// WriteHeader writes the validation output header.
func (v *ValidationWriter) WriteHeader() error {
	_, err := fmt.Fprintln(v.w, "Variant\tKind\tA_Status\tB_Status\tA_Effect_key\tB_Effect_key\tMatch")
	return err
}

// WriteComparison writes the comparison of one pair.
func (v *ValidationWriter) WriteComparison(p ResultPair) error {
	v.total++

	ref := p.A
	if ref == nil {
		ref = p.B
	}
	variantStr := fmt.Sprintf("%s:%d %s>%s", ref.Chrom, ref.Pos, ref.NonEffectAllele, ref.EffectAllele)
	if ref.ID != "" {
		variantStr += " " + ref.ID
	}

	var matchStr string
	switch {
	case p.A == nil || p.B == nil:
		v.missing++
		matchStr = "-"
	case resultsMatch(p.A, p.B):
		v.matches++
		matchStr = "Y"
	default:
		v.mismatches++
		matchStr = "N"
	}

	// Only write if showAll or not a match
	if v.showAll || matchStr != "Y" {
		_, err := fmt.Fprintf(v.w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			variantStr,
			ref.Kind,
			statusOf(p.A),
			statusOf(p.B),
			shortKey(p.A),
			shortKey(p.B),
			matchStr,
		)
		return err
	}

	return nil
}

// Flush flushes the writer.
func (v *ValidationWriter) Flush() error {
	return v.w.Flush()
}

// Summary returns match statistics.
func (v *ValidationWriter) Summary() (total, matches, mismatches, missing int) {
	return v.total, v.matches, v.mismatches, v.missing
}

// WriteSummary writes a summary of the validation results.
func (v *ValidationWriter) WriteSummary(w io.Writer) {
	matchRate := float64(0)
	compared := v.matches + v.mismatches
	if compared > 0 {
		matchRate = float64(v.matches) / float64(compared) * 100
	}
	fmt.Fprintf(w, "\nValidation Summary:\n")
	fmt.Fprintf(w, "  Total variants:  %d\n", v.total)
	fmt.Fprintf(w, "  Matches:         %d (%.1f%%)\n", v.matches, matchRate)
	fmt.Fprintf(w, "  Mismatches:      %d\n", v.mismatches)
	fmt.Fprintf(w, "  In one run only: %d\n", v.missing)
}

func resultsMatch(a, b *duckdb.VariantResult) bool {
	aFailed, bFailed := a.Status == "failed", b.Status == "failed"
	if aFailed || bFailed {
		return aFailed && bFailed && a.Reason == b.Reason
	}
	return a.EffectKey == b.EffectKey && a.NonEffectKey == b.NonEffectKey
}

func statusOf(r *duckdb.VariantResult) string {
	switch {
	case r == nil:
		return "-"
	case r.Reason != "":
		return r.Status + ":" + r.Reason
	default:
		return r.Status
	}
}

func shortKey(r *duckdb.VariantResult) string {
	if r == nil || r.EffectKey == "" {
		return "-"
	}
	if len(r.EffectKey) > 12 {
		return r.EffectKey[:12]
	}
	return r.EffectKey
}
