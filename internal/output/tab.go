package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/inodb/vibe-varseq/internal/cache"
	"github.com/inodb/vibe-varseq/internal/pipeline"
)

// TabWriter writes one tab-delimited line per outcome, failures included.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Seq",
			"Kind",
			"ID",
			"Location",
			"Effect_allele",
			"Non_effect_allele",
			"Ref_allele",
			"Status",
			"Reason",
			"Effect_key",
			"Non_effect_key",
			"Error",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Record writes a single outcome.
func (tw *TabWriter) Record(o pipeline.Outcome) error {
	location := "-"
	if o.Chrom != "" {
		location = fmt.Sprintf("%s:%d", o.Chrom, o.Pos)
	}

	effect, nonEffect := "-", "-"
	if o.Record != nil {
		effect, nonEffect = o.Record.EffectAllele, o.Record.NonEffectAllele
	}

	effectKey, nonEffectKey := "-", "-"
	if !o.Failed() {
		effectKey, nonEffectKey = cache.Key(o.Pair.Effect), cache.Key(o.Pair.NonEffect)
	}

	errText := "-"
	if o.Err != nil {
		// keep one record per line
		errText = strings.NewReplacer("\t", " ", "\n", " ").Replace(o.Err.Error())
	}

	values := []string{
		fmt.Sprintf("%d", o.Seq),
		string(o.Kind),
		orDash(o.ID),
		location,
		effect,
		nonEffect,
		orDash(o.Pair.RefAllele),
		string(o.Status),
		orDash(o.Reason),
		effectKey,
		nonEffectKey,
		errText,
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
