package output

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/inodb/vibe-varseq/internal/duckdb"
)

const runsSheet = "Runs"

var (
	runsTitle = []any{
		"Run", "Started", "Input", "Genome", "Window",
		"Computed", "Cached", "Failed", "Controls computed", "Controls cached", "Controls failed",
	}
	resultsTitle = []any{
		"Seq", "Kind", "Chrom", "Pos", "ID", "Effect allele", "Non-effect allele", "Ref allele",
		"Status", "Reason", "Effect key", "Non-effect key",
	}
)

// XLSXWriter exports ledger runs to a workbook: a "Runs" overview sheet and
// one results sheet per run, named by the first 8 characters of its ID.
type XLSXWriter struct {
	xlsx *excelize.File
	row  int // next row on the Runs sheet
}

// NewXLSXWriter creates an empty workbook.
func NewXLSXWriter() (*XLSXWriter, error) {
	xlsx := excelize.NewFile()
	if err := xlsx.SetSheetName("Sheet1", runsSheet); err != nil {
		return nil, err
	}
	if err := xlsx.SetSheetRow(runsSheet, "A1", &runsTitle); err != nil {
		return nil, err
	}
	return &XLSXWriter{xlsx: xlsx, row: 2}, nil
}

// AddRun appends run to the overview and writes its results sheet.
func (x *XLSXWriter) AddRun(run duckdb.Run, summary []duckdb.SummaryRow, results []duckdb.VariantResult) error {
	counts := make(map[string]int64)
	for _, s := range summary {
		counts[s.Kind+"/"+s.Status] += s.Count
	}
	line := []any{
		run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Input.Path, run.Genome, run.Window,
		counts["variant/computed"], counts["variant/cached"], counts["variant/failed"],
		counts["control/computed"], counts["control/cached"], counts["control/failed"],
	}
	if err := x.xlsx.SetSheetRow(runsSheet, fmt.Sprintf("A%d", x.row), &line); err != nil {
		return err
	}
	x.row++

	sheet := sheetName(run.ID)
	if _, err := x.xlsx.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := x.xlsx.SetSheetRow(sheet, "A1", &resultsTitle); err != nil {
		return err
	}
	for i, r := range results {
		line := []any{
			r.Seq, r.Kind, r.Chrom, r.Pos, r.ID, r.EffectAllele, r.NonEffectAllele, r.RefAllele,
			r.Status, r.Reason, r.EffectKey, r.NonEffectKey,
		}
		if err := x.xlsx.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &line); err != nil {
			return err
		}
	}
	return nil
}

// Runs returns the number of runs added.
func (x *XLSXWriter) Runs() int {
	return x.row - 2
}

// SaveAs writes the workbook to path.
func (x *XLSXWriter) SaveAs(path string) error {
	if err := x.xlsx.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return x.xlsx.Close()
}

func sheetName(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
