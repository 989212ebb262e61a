// Package duckdb keeps a queryable ledger of runs and per-variant outcomes.
// Model outputs themselves live in the content-addressed result cache; the
// ledger records which variants produced which cache keys.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR PRIMARY KEY,
		started_at TIMESTAMP,
		input VARCHAR,
		input_size BIGINT,
		input_mtime TIMESTAMP,
		genome VARCHAR,
		window_size INTEGER
	)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS variant_results (
		run_id VARCHAR,
		seq BIGINT,
		kind VARCHAR,
		chrom VARCHAR,
		pos BIGINT,
		id VARCHAR,
		effect_allele VARCHAR,
		non_effect_allele VARCHAR,
		ref_allele VARCHAR,
		status VARCHAR,
		reason VARCHAR,
		effect_key VARCHAR,
		non_effect_key VARCHAR
	)`)
	return err
}
