package duckdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one invocation of the pipeline over an input file.
type Run struct {
	ID        string
	StartedAt time.Time
	Input     FileFingerprint
	Genome    string
	Window    int
}

// BeginRun registers a new run and returns it with a fresh ID.
func (s *Store) BeginRun(input FileFingerprint, genome string, window int) (Run, error) {
	r := Run{
		ID:        uuid.NewString(),
		StartedAt: dbTime(time.Now()),
		Input:     input,
		Genome:    genome,
		Window:    window,
	}

	_, err := s.db.Exec(`INSERT INTO runs (run_id, started_at, input, input_size, input_mtime, genome, window_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.Input.Path, r.Input.Size, dbTime(r.Input.ModTime), r.Genome, r.Window)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// Runs returns all runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	return s.queryRuns(`SELECT run_id, started_at, input, input_size, input_mtime, genome, window_size
		FROM runs ORDER BY started_at DESC`)
}

// PreviousRuns returns earlier runs over the same unchanged input file,
// newest first.
func (s *Store) PreviousRuns(input FileFingerprint) ([]Run, error) {
	if input.IsStdin() {
		return nil, nil
	}
	return s.queryRuns(`SELECT run_id, started_at, input, input_size, input_mtime, genome, window_size
		FROM runs WHERE input=? AND input_size=? AND input_mtime=?
		ORDER BY started_at DESC`,
		input.Path, input.Size, dbTime(input.ModTime))
}

func (s *Store) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Input.Path, &r.Input.Size, &r.Input.ModTime,
			&r.Genome, &r.Window); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// dbTime drops precision DuckDB TIMESTAMP does not keep, so stored and
// queried fingerprints compare equal.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
