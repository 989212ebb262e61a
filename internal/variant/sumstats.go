package variant

import (
	"fmt"
	"strconv"
	"strings"
)

// Summary-statistics columns, in file order.
const (
	colChrom = iota
	colPos
	colID
	colEffect
	colNonEffect
	colBeta
	colSE
	colP
	minSumstatsColumns
)

// SumstatsParser reads whitespace-delimited association results: one header
// line, then chromosome, position, id, effect allele, non-effect allele,
// effect size, standard error and p-value. Rows with fewer columns are
// skipped.
type SumstatsParser struct {
	*input
	header string
}

// NewSumstatsParser opens a summary-statistics file ("-" for stdin).
func NewSumstatsParser(path string) (*SumstatsParser, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}

	p := &SumstatsParser{input: in}
	header, eof, err := in.readLine()
	if err != nil {
		in.Close()
		return nil, err
	}
	if eof {
		in.Close()
		return nil, &ParseError{Line: 0, Message: "empty input, expected a header line"}
	}
	p.header = header
	return p, nil
}

// Header returns the header line.
func (p *SumstatsParser) Header() string {
	return p.header
}

// Next reads the next record.
// Returns nil, nil when there are no more records.
func (p *SumstatsParser) Next() (*Record, error) {
	for {
		line, eof, err := p.readLine()
		if err != nil {
			return nil, err
		}
		if eof {
			return nil, nil
		}

		fields := strings.Fields(line)
		if len(fields) < minSumstatsColumns {
			continue
		}
		return p.parseFields(fields)
	}
}

func (p *SumstatsParser) parseFields(fields []string) (*Record, error) {
	pos, err := strconv.ParseInt(fields[colPos], 10, 64)
	if err != nil || pos < 1 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[colPos]),
		}
	}

	return &Record{
		Chrom:           fields[colChrom],
		Pos:             pos,
		ID:              fields[colID],
		EffectAllele:    strings.ToUpper(fields[colEffect]),
		NonEffectAllele: strings.ToUpper(fields[colNonEffect]),
		EffectSize:      parseStat(fields[colBeta]),
		StdErr:          parseStat(fields[colSE]),
		PValue:          parseStat(fields[colP]),
	}, nil
}

// parseStat reads a statistic column; "NA" and other non-numeric values
// read as zero.
func parseStat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// SkipLines discards n data lines without parsing them.
func (p *SumstatsParser) SkipLines(n int) error {
	return p.skipLines(n)
}

// LineNumber returns the current line number being processed.
func (p *SumstatsParser) LineNumber() int {
	return p.lineNumber
}
