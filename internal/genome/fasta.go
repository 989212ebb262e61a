package genome

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/biogo/hts/fai"
)

// FastaSource reads sequence from a local FASTA file with a samtools-style
// .fai index. The file handle is opened once and shared; reads go through
// io.ReaderAt so concurrent fetches do not contend on a seek offset.
type FastaSource struct {
	path  string
	file  *os.File
	index fai.Index
	fa    *fai.File
}

// OpenFasta opens path and its index (path + ".fai"). If the index does not
// exist it is built by scanning the FASTA and written next to it when the
// directory is writable.
func OpenFasta(path string) (*FastaSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta: %w", err)
	}

	idx, err := loadIndex(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FastaSource{
		path:  path,
		file:  f,
		index: idx,
		fa:    fai.NewFile(f, idx),
	}, nil
}

func loadIndex(path string, f *os.File) (fai.Index, error) {
	idxFile, err := os.Open(path + ".fai")
	if err == nil {
		defer idxFile.Close()
		idx, err := fai.ReadFrom(idxFile)
		if err != nil {
			return nil, fmt.Errorf("read fasta index: %w", err)
		}
		return idx, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open fasta index: %w", err)
	}

	idx, err := fai.NewIndex(f)
	if err != nil {
		return nil, fmt.Errorf("index fasta: %w", err)
	}

	// Not fatal: read-only reference directories are common.
	_ = writeIndex(path+".fai", idx)
	return idx, nil
}

// writeIndex writes idx to a temporary file renamed onto path, so an
// interrupted write never leaves a truncated index behind.
func writeIndex(path string, idx fai.Index) error {
	var buf bytes.Buffer
	if err := fai.WriteTo(&buf, idx); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, err = tmp.Write(buf.Bytes())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0644)
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		os.Remove(tmpPath)
	}
	return err
}

// Fetch returns the bases in [start, end) of chrom.
func (s *FastaSource) Fetch(_ context.Context, chrom string, start, end int64) (string, error) {
	rec, ok := s.index[chrom]
	if !ok {
		return "", fmt.Errorf("sequence %q not in %s", chrom, s.path)
	}
	if start < 0 || end > int64(rec.Length) || start > end {
		return "", fmt.Errorf("range %s:%d-%d outside sequence of length %d", chrom, start, end, rec.Length)
	}

	r, err := s.fa.SeqRange(chrom, int(start), int(end))
	if err != nil {
		return "", fmt.Errorf("fetch %s:%d-%d: %w", chrom, start, end, err)
	}
	seq, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s:%d-%d: %w", chrom, start, end, err)
	}
	return string(bytes.ToUpper(seq)), nil
}

// Chromosomes returns the sequence names in the index.
func (s *FastaSource) Chromosomes() []string {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	return names
}

// Close closes the underlying FASTA file.
func (s *FastaSource) Close() error {
	return s.file.Close()
}
