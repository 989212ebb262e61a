// Package variant reads the variant records processed by a run.
package variant

import "strings"

// Record is one variant from an association study or call set.
type Record struct {
	Chrom           string // chromosome as written in the input
	Pos             int64  // 1-based position
	ID              string // variant identifier (e.g. rs ID)
	EffectAllele    string
	NonEffectAllele string

	// Summary statistics, zero when the input carries none.
	EffectSize float64
	StdErr     float64
	PValue     float64
}

// IsSNV reports whether both alleles are single bases.
func (r *Record) IsSNV() bool {
	return len(r.EffectAllele) == 1 && len(r.NonEffectAllele) == 1
}

// Label returns the ID, or chrom:pos when the record has none.
func (r *Record) Label() string {
	if r.ID != "" && r.ID != "." {
		return r.ID
	}
	return r.LookupChrom() + ":" + itoa(r.Pos)
}

// LookupChrom returns the chromosome with a "chr" prefix, the naming used
// by the genome sources.
func (r *Record) LookupChrom() string {
	return NormalizeChrom(r.Chrom)
}

// NormalizeChrom adds a "chr" prefix to bare chromosome names and maps
// "MT" to "chrM".
func NormalizeChrom(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return chrom
	}
	if chrom == "MT" {
		return "chrM"
	}
	return "chr" + chrom
}
