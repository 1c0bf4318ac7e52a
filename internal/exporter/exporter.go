// Package exporter writes the final conciliation workbook.
package exporter

import (
	"fmt"
	"os"
	"strings"

	"creditnote-conciliator/internal/engine"
	apperrors "creditnote-conciliator/pkg/errors"
	"creditnote-conciliator/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// Config holds the export settings.
type Config struct {
	// OutputPath is where the workbook is written.
	OutputPath string
}

// DefaultConfig returns the standard export settings.
func DefaultConfig() *Config {
	return &Config{
		OutputPath: "CONCILIATION_FINAL_REPORT.xlsx",
	}
}

// Validate checks the configuration for sanity
func (c *Config) Validate() error {
	if c.OutputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	return nil
}

// Exporter renders a pipeline result into one multi-sheet workbook. The
// breakdown sheets and the audit log are always present; the scenario
// sheets only appear when they carry rows.
type Exporter struct {
	config *Config
	logger logger.Logger
}

// New creates an exporter.
func New(config *Config) (*Exporter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "exporter", config.OutputPath, err)
	}
	return &Exporter{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("exporter"),
	}, nil
}

// Write materializes the workbook at the configured output path.
func (e *Exporter) Write(result *engine.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the first breakdown.
	if err := f.SetSheetName(f.GetSheetName(0), "By_Debt_File"); err != nil {
		return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
	}
	writeBreakdown(f, "By_Debt_File", "Debt_File", "Credit_File", result.DebtBreakdown)

	if err := addSheet(f, "By_Credit_File"); err != nil {
		return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
	}
	writeBreakdown(f, "By_Credit_File", "Credit_File", "Debt_File", result.CreditBreakdown)

	cls := result.Classification

	if cls != nil && len(cls.PendingClaims) > 0 {
		if err := addSheet(f, "Pending_Claims"); err != nil {
			return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
		}
		writeRow(f, "Pending_Claims", 1, "Source_File", "Card", "Operation", "Amount")
		for i, claim := range cls.PendingClaims {
			writeRow(f, "Pending_Claims", i+2,
				claim.SourceRef, claim.Card, claim.Operation, claim.Amount.InexactFloat64())
		}
	}

	if cls != nil && len(cls.UnexpectedRefunds) > 0 {
		if err := addSheet(f, "Unexpected_Refunds"); err != nil {
			return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
		}
		writeRow(f, "Unexpected_Refunds", 1,
			"Debt_File", "Credit_File", "Card", "Operation", "Debt_Amount", "Refund_Amount")
		for i, refund := range cls.UnexpectedRefunds {
			writeRow(f, "Unexpected_Refunds", i+2,
				refund.DebtSource, refund.CreditSource, refund.Card, refund.Operation,
				refund.DebtAmount.InexactFloat64(), refund.CreditAmount.InexactFloat64())
		}
	}

	if cls != nil && len(cls.FullyReconciled) > 0 {
		if err := addSheet(f, "Fully_Reconciled_Notes"); err != nil {
			return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
		}
		writeRow(f, "Fully_Reconciled_Notes", 1, "DEBTOR FILE", "CREDIT NOTE FILE", "AMOUNT MATCHED")
		for i, note := range cls.FullyReconciled {
			writeRow(f, "Fully_Reconciled_Notes", i+2,
				note.DebtorFile, note.CreditFile, note.Amount.InexactFloat64())
		}
	}

	if len(result.NetBalanced) > 0 {
		if err := addSheet(f, "Net_Balanced_Files"); err != nil {
			return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
		}
		writeRow(f, "Net_Balanced_Files", 1, "Debtor_File", "Row_Type", "Card", "Operation", "Amount")
		for i, row := range result.NetBalanced {
			writeRow(f, "Net_Balanced_Files", i+2,
				row.DebtorFile, string(row.RowType), row.Card, row.Operation, row.Amount.InexactFloat64())
		}
	}

	if len(result.Variances) > 0 {
		if err := addSheet(f, "Amount_Variances"); err != nil {
			return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
		}
		writeRow(f, "Amount_Variances", 1,
			"Credit_File", "Card", "Operation", "Refund_Amount", "Total_Debts_Covered", "Variance", "Status")
		for i, v := range result.Variances {
			writeRow(f, "Amount_Variances", i+2,
				v.CreditSource, v.Card, v.Operation,
				v.RefundAmount.InexactFloat64(), v.TotalDebtsCovered.InexactFloat64(),
				v.Variance.InexactFloat64(), string(v.Status))
		}
	}

	if err := addSheet(f, "Detailed_Audit_Log"); err != nil {
		return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
	}
	writeRow(f, "Detailed_Audit_Log", 1,
		"Debt_File", "Credit_File", "Card", "Operation", "Debt_Amount", "Credit_Amount", "Must_Refund")
	for i, pair := range result.Pairs {
		writeRow(f, "Detailed_Audit_Log", i+2,
			pair.Debt.SourceRef, pair.Credit.SourceRef, pair.Debt.Card, pair.Debt.Operation,
			pair.Debt.Amount.InexactFloat64(), pair.Credit.Amount.InexactFloat64(),
			string(pair.Debt.MustRefund))
	}

	if err := f.SaveAs(e.config.OutputPath); err != nil {
		return e.saveError(err)
	}

	e.logger.WithField("path", e.config.OutputPath).Info("Report written")
	return nil
}

// saveError distinguishes the workbook being open in a spreadsheet program
// from other write failures, so the operator gets an actionable message.
func (e *Exporter) saveError(err error) error {
	if os.IsPermission(err) || strings.Contains(err.Error(), "used by another process") {
		return apperrors.ExportError(apperrors.CodeWorkbookLocked, e.config.OutputPath, err)
	}
	return apperrors.ExportError(apperrors.CodeWriteFailed, e.config.OutputPath, err)
}

func addSheet(f *excelize.File, name string) error {
	_, err := f.NewSheet(name)
	return err
}

func writeBreakdown(f *excelize.File, sheet, primaryHeader, secondaryHeader string, rows []engine.BreakdownRow) {
	writeRow(f, sheet, 1, primaryHeader, secondaryHeader, "Count_Operations", "Total_Conciliated_Amount")
	for i, row := range rows {
		writeRow(f, sheet, i+2, row.Primary, row.Secondary, row.Operations, row.Amount.InexactFloat64())
	}
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, value)
	}
}
