package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// VariantResult is one ledger row: the outcome for a variant or control.
type VariantResult struct {
	RunID           string
	Seq             int64
	Kind            string
	Chrom           string
	Pos             int64
	ID              string
	EffectAllele    string
	NonEffectAllele string
	RefAllele       string
	Status          string
	Reason          string
	EffectKey       string // result cache key of the effect sequence
	NonEffectKey    string
}

const resultColumns = `run_id, seq, kind, chrom, pos, id, effect_allele, non_effect_allele,
	ref_allele, status, reason, effect_key, non_effect_key`

// WriteVariantResults batch-inserts results into DuckDB using the Appender API.
func (s *Store) WriteVariantResults(results []VariantResult) error {
	if len(results) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "variant_results")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, r := range results {
		if err := appender.AppendRow(
			r.RunID, r.Seq, r.Kind, r.Chrom, r.Pos, r.ID,
			r.EffectAllele, r.NonEffectAllele, r.RefAllele,
			r.Status, r.Reason, r.EffectKey, r.NonEffectKey,
		); err != nil {
			return fmt.Errorf("append variant result: %w", err)
		}
	}

	return appender.Flush()
}

// LookupVariant returns every recorded outcome at chrom:pos across runs,
// variants and controls alike.
func (s *Store) LookupVariant(chrom string, pos int64) ([]VariantResult, error) {
	rows, err := s.db.Query(`SELECT `+resultColumns+`
		FROM variant_results
		WHERE chrom=? AND pos=?
		ORDER BY run_id, seq, kind DESC`, chrom, pos)
	if err != nil {
		return nil, fmt.Errorf("query variant: %w", err)
	}
	defer rows.Close()

	return scanVariantResults(rows)
}

// RunResults returns the outcomes of one run in input order, each variant
// followed by its control.
func (s *Store) RunResults(runID string) ([]VariantResult, error) {
	rows, err := s.db.Query(`SELECT `+resultColumns+`
		FROM variant_results
		WHERE run_id=?
		ORDER BY seq, kind DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	return scanVariantResults(rows)
}

// SummaryRow counts the outcomes of one kind, status and failure reason.
type SummaryRow struct {
	Kind   string
	Status string
	Reason string
	Count  int64
}

// Summary aggregates the outcomes of a run.
func (s *Store) Summary(runID string) ([]SummaryRow, error) {
	rows, err := s.db.Query(`SELECT kind, status, reason, count(*)
		FROM variant_results
		WHERE run_id=?
		GROUP BY kind, status, reason
		ORDER BY kind DESC, status, reason`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var summary []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Kind, &r.Status, &r.Reason, &r.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary = append(summary, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return summary, nil
}

// scanVariantResults scans rows into VariantResult slices.
func scanVariantResults(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]VariantResult, error) {
	var results []VariantResult
	for rows.Next() {
		var r VariantResult
		if err := rows.Scan(
			&r.RunID, &r.Seq, &r.Kind, &r.Chrom, &r.Pos, &r.ID,
			&r.EffectAllele, &r.NonEffectAllele, &r.RefAllele,
			&r.Status, &r.Reason, &r.EffectKey, &r.NonEffectKey,
		); err != nil {
			return nil, fmt.Errorf("scan variant result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant results: %w", err)
	}
	return results, nil
}
