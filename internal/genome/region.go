// Package genome provides access to reference genome sequence, either from
// local indexed FASTA files or from the UCSC REST API.
package genome

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultWindow is the input length of the sequence model in bases.
const DefaultWindow = 196_608

// Region is a half-open, zero-based genomic interval.
type Region struct {
	Chrom string
	Start int64
	End   int64
}

// Len returns the number of bases covered by the region.
func (r Region) Len() int64 {
	return r.End - r.Start
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
}

// Normalize grows or shrinks r to exactly window bases around the midpoint
// of the requested span. The center uses floor division on the span and the
// same window/2 on both sides; variant offsets in the window depend on it.
func Normalize(r Region, window int) Region {
	center := (r.End-r.Start)/2 + r.Start
	half := int64(window / 2)
	return Region{
		Chrom: r.Chrom,
		Start: center - half,
		End:   center + half,
	}
}

// ParseRegion parses "chr19:44,900,254-44,911,047". Thousands separators
// (commas and underscores) are accepted in the coordinates.
func ParseRegion(s string) (Region, error) {
	chrom, coords, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || chrom == "" {
		return Region{}, fmt.Errorf("invalid region %q: expected chrom:start-end", s)
	}
	startStr, endStr, ok := strings.Cut(coords, "-")
	if !ok {
		return Region{}, fmt.Errorf("invalid region %q: expected chrom:start-end", s)
	}

	start, err := parseCoord(startStr)
	if err != nil {
		return Region{}, fmt.Errorf("invalid region start %q: %w", startStr, err)
	}
	end, err := parseCoord(endStr)
	if err != nil {
		return Region{}, fmt.Errorf("invalid region end %q: %w", endStr, err)
	}
	if end < start {
		return Region{}, fmt.Errorf("invalid region %q: end before start", s)
	}

	return Region{Chrom: chrom, Start: start, End: end}, nil
}

func parseCoord(s string) (int64, error) {
	s = strings.NewReplacer(",", "", "_", "").Replace(strings.TrimSpace(s))
	return strconv.ParseInt(s, 10, 64)
}
