// Package output writes run results: the VCF-style record of processed
// variants, a tab-delimited outcome report, spreadsheet exports of the run
// ledger and comparisons between ledger runs.
package output

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/inodb/vibe-varseq/internal/pipeline"
)

// vcfHeader is written before any record.
var vcfHeader = []string{
	"##fileformat=VCFv4.2",
	"##source=vibe-varseq",
	`##INFO=<ID=TYPE,Number=1,Type=String,Description="SNP or CONTROL">`,
	`##INFO=<ID=ORIGINAL_SNP,Number=1,Type=String,Description="Original SNP ID for controls">`,
	`##INFO=<ID=REF_ALLELE,Number=1,Type=String,Description="Reference allele at this position">`,
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO",
}

// VCFWriter records successfully processed variants and controls as VCF
// lines. Main records carry REF=non-effect and ALT=effect; control records
// carry the reference base at the control locus as REF and both substituted
// alleles as ALT.
type VCFWriter struct {
	w *bufio.Writer
}

// NewVCFWriter creates a new VCF output writer.
func NewVCFWriter(w io.Writer) *VCFWriter {
	return &VCFWriter{w: bufio.NewWriter(w)}
}

// DefaultVCFPath returns controls_<input stem>.vcf in the working directory.
func DefaultVCFPath(input string) string {
	base := filepath.Base(input)
	return "controls_" + strings.TrimSuffix(base, filepath.Ext(base)) + ".vcf"
}

// WriteHeader writes the meta-information and column header lines.
func (vw *VCFWriter) WriteHeader() error {
	for _, line := range vcfHeader {
		if _, err := vw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Record writes o unless it failed.
func (vw *VCFWriter) Record(o pipeline.Outcome) error {
	if o.Failed() || o.Record == nil {
		return nil
	}

	rec := o.Record
	fields := []string{rec.Chrom, fmt.Sprintf("%d", o.Pos), o.ID}
	switch o.Kind {
	case pipeline.KindControl:
		fields = append(fields,
			o.Pair.RefAllele,
			rec.EffectAllele+","+rec.NonEffectAllele,
			".", ".",
			"TYPE=CONTROL;ORIGINAL_SNP="+rec.Label()+";REF_ALLELE="+o.Pair.RefAllele)
	default:
		fields = append(fields,
			rec.NonEffectAllele,
			rec.EffectAllele,
			".", ".",
			"TYPE=SNP")
	}

	_, err := vw.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (vw *VCFWriter) Flush() error {
	return vw.w.Flush()
}
