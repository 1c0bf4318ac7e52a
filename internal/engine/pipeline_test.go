package engine

import (
	"context"
	"path/filepath"
	"testing"

	"creditnote-conciliator/internal/loader"
	apperrors "creditnote-conciliator/pkg/errors"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, dir, name string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

func newTestPipeline(t *testing.T, dir string) *Pipeline {
	t.Helper()
	cfg := loader.DefaultConfig()
	cfg.InputDir = dir
	l, err := loader.New(cfg)
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}
	p, err := NewPipeline(l, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestPipelineHappyPath(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount", "RECUPERAR"},
		{"C1", "OP-1", "60.00", "NO"},
		{"C1", "OP-1", "40.00", "NO"},
		{"C2", "OP-2", "200.00", "NO"},
	})
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
		{"C2", "OP-2", "200.00"},
	})

	result, err := newTestPipeline(t, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.NoMatches {
		t.Fatal("fixture should match")
	}
	if len(result.Pairs) != 3 {
		t.Errorf("expected 3 pairs, got %d", len(result.Pairs))
	}
	if len(result.Variances) != 0 {
		t.Errorf("expected no variances, got %v", result.Variances)
	}
	if !result.Classification.ReconciledFiles["M2D-RECU 01.01.2026"] {
		t.Error("the debt file should be fully reconciled")
	}
	if len(result.DebtBreakdown) != 1 || len(result.CreditBreakdown) != 1 {
		t.Error("expected one breakdown grouping per view")
	}
}

func TestPipelineEmptyPileFails(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
	})
	// No credit files at all.

	_, err := newTestPipeline(t, dir).Run(context.Background())
	if err == nil {
		t.Fatal("an empty credit pile must abort the run")
	}
	cerr, ok := apperrors.AsConciliationError(err)
	if !ok || cerr.Code != apperrors.CodeEmptyPile {
		t.Errorf("expected empty_pile error, got %v", err)
	}
}

func TestPipelineQualityErrorAborts(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"", "OP-1", "100.00"}, // empty card: blocking
		{"C2", "OP-2", "200.00"},
	})
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C2", "OP-2", "200.00"},
	})

	_, err := newTestPipeline(t, dir).Run(context.Background())
	if err == nil {
		t.Fatal("a quality-gate error must abort the run")
	}
	cerr, ok := apperrors.AsConciliationError(err)
	if !ok || cerr.Code != apperrors.CodeQualityFailed {
		t.Errorf("expected quality_check_failed error, got %v", err)
	}
}

func TestPipelineDuplicateFilesAbort(t *testing.T) {
	dir := t.TempDir()
	rows := [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
		{"C2", "OP-2", "200.00"},
	}
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", rows)
	writeWorkbook(t, dir, "M2D-RECU 01.02.2026.xlsx", rows) // same export, new date
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
	})

	_, err := newTestPipeline(t, dir).Run(context.Background())
	if err == nil {
		t.Fatal("duplicate debt files must abort the run")
	}
	cerr, ok := apperrors.AsConciliationError(err)
	if !ok || cerr.Category != apperrors.CategoryDuplicate {
		t.Errorf("expected a duplicate-category error, got %v", err)
	}
}

func TestPipelineOrphanedCreditsAbort(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
	})
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
		{"ZZ", "OP-9", "50.00"}, // refund with no charge behind it
	})

	_, err := newTestPipeline(t, dir).Run(context.Background())
	if err == nil {
		t.Fatal("an orphaned credit must abort the run")
	}
	cerr, ok := apperrors.AsConciliationError(err)
	if !ok || cerr.Code != apperrors.CodeOrphanedCredits {
		t.Errorf("expected orphaned_credits error, got %v", err)
	}
}

func TestPipelineNoMatchesEndsInformationally(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
		{"C2", "OP-2", "200.00"},
	})
	// No shared keys at all; the no-match check runs before orphan
	// analysis, so this ends informationally instead of aborting.
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"X1", "OP-7", "70.00"},
	})

	result, err := newTestPipeline(t, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("no matches is informational, not an error: %v", err)
	}
	if !result.NoMatches {
		t.Error("expected NoMatches set")
	}
	if result.Classification != nil {
		t.Error("no downstream tables should be produced without matches")
	}
}

func TestPipelineWarningsSurfaced(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "-100.00"}, // negative: warning only
		{"C2", "OP-2", "200.00"},
	})
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "-100.00"},
	})

	result, err := newTestPipeline(t, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("warnings must not abort: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("negative amounts should surface as warnings")
	}
}

func TestPipelineContextCancellation(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "M2D-RECU 01.01.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
	})
	writeWorkbook(t, dir, "M6D-DEV 01.05.2026.xlsx", [][]interface{}{
		{"Card", "Operation Number", "Original Amount"},
		{"C1", "OP-1", "100.00"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestPipeline(t, dir).Run(ctx); err == nil {
		t.Error("a cancelled context should stop the pipeline")
	}
}
