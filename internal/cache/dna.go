package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/inodb/vibe-varseq/internal/genome"
)

const dnaSuffix = ".seq.gz"

// SequenceFetcher looks up bases in a configured genome.
type SequenceFetcher interface {
	Fetch(ctx context.Context, genomeID, chrom string, start, end int64) (string, error)
}

// DNACache caches fixed-length genome windows keyed by genome and
// normalized coordinates. Entries are never re-validated against the source:
// the content at fixed genome coordinates does not change.
type DNACache struct {
	disk    disk
	source  SequenceFetcher
	window  int
	fetches atomic.Int64
}

// NewDNACache creates a window cache in dir backed by source.
func NewDNACache(dir string, source SequenceFetcher, window int) *DNACache {
	return &DNACache{
		disk:   newDisk(dir),
		source: source,
		window: window,
	}
}

// SetLogger sets the logger for cache diagnostics.
func (c *DNACache) SetLogger(l *zap.Logger) {
	c.disk.logger = l
}

// Window returns the fixed window length.
func (c *DNACache) Window() int {
	return c.window
}

// SourceFetches returns how many lookups went to the sequence source.
func (c *DNACache) SourceFetches() int64 {
	return c.fetches.Load()
}

// DNAKey returns the record name for a normalized window.
func DNAKey(genomeID string, r genome.Region) string {
	return fmt.Sprintf("%s__%s_%d_%d%s", safeName(genomeID), safeName(r.Chrom), r.Start, r.End, dnaSuffix)
}

// GetOrFetch returns the window of the configured length centered on the
// midpoint of r. The cache is consulted first; on a miss the source is
// queried and the result persisted when the cache directory is writable.
func (c *DNACache) GetOrFetch(ctx context.Context, r genome.Region, genomeID string) (string, error) {
	win := genome.Normalize(r, c.window)
	key := DNAKey(genomeID, win)

	data, ok, err := c.disk.read(key)
	if err != nil {
		c.disk.logger.Debug("unreadable DNA cache record, refetching", zap.String("record", key), zap.Error(err))
	}
	if ok {
		return string(data), nil
	}

	c.fetches.Add(1)
	seq, err := c.source.Fetch(ctx, genomeID, win.Chrom, win.Start, win.End)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", win, err)
	}

	c.disk.write(key, []byte(seq))
	return seq, nil
}

// Count returns the number of cached windows.
func (c *DNACache) Count() (int, error) {
	return c.disk.count(dnaSuffix)
}

func safeName(s string) string {
	return strings.NewReplacer("/", "_", string([]byte{0}), "_").Replace(s)
}
