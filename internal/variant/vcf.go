package variant

import (
	"fmt"
	"strconv"
	"strings"
)

// VCFParser reads VCF records as variants: REF is the non-effect allele and
// each ALT allele yields its own record with that ALT as the effect allele.
type VCFParser struct {
	*input
	header  []string
	pending []*Record // split ALT alleles not yet returned
}

// NewVCFParser opens a VCF file ("-" for stdin, .vcf.gz supported).
func NewVCFParser(path string) (*VCFParser, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}

	p := &VCFParser{input: in}
	if err := p.parseHeader(); err != nil {
		in.Close()
		return nil, err
	}
	return p, nil
}

// parseHeader reads and stores VCF header lines.
func (p *VCFParser) parseHeader() error {
	for {
		line, eof, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if eof {
			return &ParseError{Line: p.lineNumber, Message: "no #CHROM header line found"}
		}

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			return nil
		}
		return &ParseError{Line: p.lineNumber, Message: "expected #CHROM header line"}
	}
}

// Header returns the VCF header lines.
func (p *VCFParser) Header() []string {
	return p.header
}

// Next reads the next record.
// Returns nil, nil when there are no more records.
func (p *VCFParser) Next() (*Record, error) {
	if len(p.pending) > 0 {
		rec := p.pending[0]
		p.pending = p.pending[1:]
		return rec, nil
	}

	for {
		line, eof, err := p.readLine()
		if err != nil {
			return nil, err
		}
		if eof {
			return nil, nil
		}
		if line == "" {
			continue
		}

		recs, err := p.parseLine(line)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			continue
		}
		p.pending = recs[1:]
		return recs[0], nil
	}
}

// parseLine parses a VCF data line into one record per ALT allele. Missing
// ALT ("." or "*") alleles are dropped.
func (p *VCFParser) parseLine(line string) ([]*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields)),
		}
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos < 1 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	ref := strings.ToUpper(fields[3])
	var recs []*Record
	for _, alt := range strings.Split(fields[4], ",") {
		if alt == "." || alt == "*" {
			continue
		}
		recs = append(recs, &Record{
			Chrom:           fields[0],
			Pos:             pos,
			ID:              fields[2],
			EffectAllele:    strings.ToUpper(alt),
			NonEffectAllele: ref,
		})
	}
	return recs, nil
}

// SkipLines discards n data lines without parsing them.
func (p *VCFParser) SkipLines(n int) error {
	p.pending = nil
	return p.skipLines(n)
}

// LineNumber returns the current line number being processed.
func (p *VCFParser) LineNumber() int {
	return p.lineNumber
}
