package duckdb

import (
	"os"
	"time"
)

// StdinPath names standard input on the command line.
const StdinPath = "-"

// FileFingerprint identifies a run's input by path, size and modification
// time. Standard input has no size or time and never matches an earlier run.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile fingerprints the input at path.
func StatFile(path string) (FileFingerprint, error) {
	if path == StdinPath {
		return FileFingerprint{Path: path}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: dbTime(info.ModTime()),
	}, nil
}

// IsStdin reports whether the fingerprint is for standard input.
func (fp FileFingerprint) IsStdin() bool {
	return fp.Path == StdinPath
}
