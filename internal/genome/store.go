package genome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// UCSCPrefix marks a genome spec that is served by the UCSC REST API,
// e.g. "ucsc:hg19".
const UCSCPrefix = "ucsc:"

// Source fetches upper-case bases for a half-open, zero-based interval.
type Source interface {
	Fetch(ctx context.Context, chrom string, start, end int64) (string, error)
	Close() error
}

// Store resolves genome ids to sources. Each source is opened on first use
// and kept for the lifetime of the Store.
type Store struct {
	mu      sync.Mutex
	specs   map[string]string
	sources map[string]Source
	ucscURL string
	logger  *zap.Logger
}

// NewStore creates a store from genome id -> spec, where spec is either a
// FASTA path or "ucsc:<assembly>".
func NewStore(specs map[string]string) *Store {
	cp := make(map[string]string, len(specs))
	for k, v := range specs {
		cp[k] = v
	}
	return &Store{
		specs:   cp,
		sources: make(map[string]Source),
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger used when sources are opened.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// SetUCSCBaseURL overrides the UCSC REST endpoint for "ucsc:" genomes.
func (s *Store) SetUCSCBaseURL(u string) {
	s.ucscURL = u
}

// Check opens the source for id, returning UnknownGenomeError or
// SourceUnavailableError when the genome cannot be used.
func (s *Store) Check(id string) error {
	_, err := s.source(id)
	return err
}

// Fetch returns the bases in [start, end) of chrom in genome id.
func (s *Store) Fetch(ctx context.Context, id, chrom string, start, end int64) (string, error) {
	src, err := s.source(id)
	if err != nil {
		return "", err
	}
	return src.Fetch(ctx, chrom, start, end)
}

func (s *Store) source(id string) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src, ok := s.sources[id]; ok {
		return src, nil
	}

	spec, ok := s.specs[id]
	if !ok {
		return nil, &UnknownGenomeError{Genome: id, Available: s.genomeIDs()}
	}

	src, err := s.open(id, spec)
	if err != nil {
		return nil, err
	}
	s.sources[id] = src
	return src, nil
}

// genomeIDs returns the configured ids in sorted order. Callers hold s.mu.
func (s *Store) genomeIDs() []string {
	ids := make([]string, 0, len(s.specs))
	for id := range s.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) open(id, spec string) (Source, error) {
	if assembly, ok := strings.CutPrefix(spec, UCSCPrefix); ok {
		if assembly == "" {
			assembly = id
		}
		s.logger.Info("using UCSC REST API", zap.String("genome", id), zap.String("assembly", assembly))
		return NewUCSCSource(s.ucscURL, assembly), nil
	}

	if _, err := os.Stat(spec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("genome file not found: %s", spec)
		}
		return nil, &SourceUnavailableError{Genome: id, Err: err}
	}

	src, err := OpenFasta(spec)
	if err != nil {
		return nil, &SourceUnavailableError{Genome: id, Err: err}
	}
	s.logger.Info("opened genome FASTA", zap.String("genome", id), zap.String("path", spec))
	return src, nil
}

// Close closes every opened source.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for id, src := range s.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(s.sources, id)
	}
	return errors.Join(errs...)
}
