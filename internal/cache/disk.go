// Package cache provides the content-addressed on-disk caches for genome
// windows and model results.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// disk is a directory of gzip-compressed records keyed by file name.
// Records are immutable once written; writes go to a temporary file that is
// renamed into place so readers never observe a partial record.
type disk struct {
	dir    string
	logger *zap.Logger
}

// newDisk does not touch the file system; dir is created on first write.
func newDisk(dir string) disk {
	return disk{dir: dir, logger: zap.NewNop()}
}

func (d disk) path(name string) string {
	return filepath.Join(d.dir, name)
}

// read returns the decompressed record, or ok=false if it does not exist.
func (d disk) read(name string) (data []byte, ok bool, err error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open cache record: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	data, err = io.ReadAll(gz)
	if err != nil {
		return nil, false, fmt.Errorf("read cache record: %w", err)
	}
	return data, true, nil
}

// write stores data under name if the directory is writable. Failures are
// logged and reported as false, never returned.
func (d disk) write(name string, data []byte) bool {
	// Best effort: a read-only shared cache may not allow this.
	_ = os.MkdirAll(d.dir, 0755)
	if !writable(d.dir) {
		d.logger.Debug("cache directory not writable, skipping write", zap.String("dir", d.dir))
		return false
	}
	if err := d.writeAtomic(name, data); err != nil {
		d.logger.Debug("cache write failed", zap.String("record", name), zap.Error(err))
		return false
	}
	return true
}

func (d disk) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("compress record: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("compress record: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	// Two writers racing on the same key produce identical content; the
	// last rename wins and either result is valid.
	if err := os.Rename(tmpPath, d.path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// count returns the number of records with the given suffix. A missing
// directory holds no records.
func (d disk) count(suffix string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, "*"+suffix))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
