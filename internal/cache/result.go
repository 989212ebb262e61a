package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/inodb/vibe-varseq/internal/tensor"
)

const resultSuffix = ".npz.gz"

// Key returns the SHA-256 hex digest of the exact sequence bytes. It is the
// only key derivation for model results; callers must not hash sequences
// themselves.
func Key(sequence string) string {
	sum := sha256.Sum256([]byte(sequence))
	return hex.EncodeToString(sum[:])
}

// ResultCache memoizes model outputs by sequence content across runs.
// Presence of an entry means the sequence has been computed; there is no
// staleness check and no eviction.
type ResultCache struct {
	disk disk
}

// NewResultCache creates a result cache in dir.
func NewResultCache(dir string) *ResultCache {
	return &ResultCache{disk: newDisk(dir)}
}

// SetLogger sets the logger for cache diagnostics.
func (c *ResultCache) SetLogger(l *zap.Logger) {
	c.disk.logger = l
}

func recordName(sequence string) string {
	return Key(sequence) + resultSuffix
}

// Has reports whether a usable result for sequence is cached. It applies
// the same test as Lookup, so a record Has accepts is one Lookup returns.
func (c *ResultCache) Has(sequence string) bool {
	_, ok := c.Lookup(sequence)
	return ok
}

// Lookup returns the cached output for sequence. Unreadable records are
// treated as misses.
func (c *ResultCache) Lookup(sequence string) (tensor.Tensor, bool) {
	name := recordName(sequence)
	data, ok, err := c.disk.read(name)
	if err != nil {
		c.disk.logger.Warn("unreadable result cache record", zap.String("record", name), zap.Error(err))
		return tensor.Tensor{}, false
	}
	if !ok {
		return tensor.Tensor{}, false
	}

	t, err := tensor.Decode(data)
	if err != nil {
		c.disk.logger.Warn("undecodable result cache record", zap.String("record", name), zap.Error(err))
		return tensor.Tensor{}, false
	}
	return t, true
}

// Store persists output for sequence if the cache directory is writable and
// reports whether it was persisted.
func (c *ResultCache) Store(sequence string, output tensor.Tensor) bool {
	var buf bytes.Buffer
	if err := tensor.Encode(&buf, output); err != nil {
		c.disk.logger.Warn("cannot encode model output", zap.Error(err))
		return false
	}
	return c.disk.write(recordName(sequence), buf.Bytes())
}

// Count returns the number of cached results.
func (c *ResultCache) Count() (int, error) {
	return c.disk.count(resultSuffix)
}
