package variant

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Input formats.
const (
	FormatSumstats = "sumstats"
	FormatVCF      = "vcf"
)

// Parser reads variant records from one input.
type Parser interface {
	// Next reads the next record.
	// Returns nil, nil when there are no more records.
	Next() (*Record, error)

	// SkipLines discards n data lines without parsing them.
	SkipLines(n int) error

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

// ParseError represents a malformed input line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("variant parse error at line %d: %s", e.Line, e.Message)
}

// Open opens path ("-" for stdin) with the parser for format. An empty
// format is detected from the file name and content.
func Open(path, format string) (Parser, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	switch format {
	case FormatSumstats:
		return NewSumstatsParser(path)
	case FormatVCF:
		return NewVCFParser(path)
	default:
		return nil, fmt.Errorf("unknown input format %q (use %s or %s)", format, FormatSumstats, FormatVCF)
	}
}

// DetectFormat guesses the input format from the file name, then from a
// "##fileformat=VCF" first line. Everything else is summary statistics.
func DetectFormat(path string) string {
	lowerPath := strings.ToLower(path)
	lowerPath = strings.TrimSuffix(lowerPath, ".gz")

	if strings.HasSuffix(lowerPath, ".vcf") {
		return FormatVCF
	}
	if path == "-" {
		return FormatSumstats
	}

	in, err := openInput(path)
	if err != nil {
		return FormatSumstats
	}
	defer in.Close()

	line, _, err := in.readLine()
	if err == nil && strings.HasPrefix(line, "##fileformat=VCF") {
		return FormatVCF
	}
	return FormatSumstats
}

// input is a line reader over a plain or gzipped file.
type input struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
}

func openInput(path string) (*input, error) {
	if path == "-" {
		return newInput(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open variant file: %w", err)
	}

	in, err := newInput(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	in.file = file
	return in, nil
}

func newInput(r io.Reader) (*input, error) {
	in := &input{reader: bufio.NewReader(r)}

	// Check for gzip magic number (0x1f, 0x8b)
	magic, err := in.reader.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		in.gzipReader, err = gzip.NewReader(in.reader)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		in.reader = bufio.NewReader(in.gzipReader)
	}
	return in, nil
}

// readLine returns the next line without its terminator. eof is set once
// the input is exhausted and line is empty.
func (in *input) readLine() (line string, eof bool, err error) {
	line, err = in.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			return "", true, nil
		}
	}
	in.lineNumber++
	return strings.TrimRight(line, "\r\n"), false, nil
}

func (in *input) skipLines(n int) error {
	for i := 0; i < n; i++ {
		_, eof, err := in.readLine()
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
	return nil
}

// Close closes the underlying file.
func (in *input) Close() error {
	if in.gzipReader != nil {
		in.gzipReader.Close()
	}
	if in.file != nil {
		return in.file.Close()
	}
	return nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
