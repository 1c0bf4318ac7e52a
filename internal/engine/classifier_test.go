package engine

import (
	"testing"

	"creditnote-conciliator/internal/models"

	"github.com/shopspring/decimal"
)

// Three-scenario set: one pending claim, one unexpected refund, one clean
// refund-flagged file.
func classifierFixture() (debt, credit *pileFixture) {
	d := &pileFixture{role: models.RoleDebt}
	d.add(debtRecord("C1", "OP-1", 10, models.MustRefundNo, "M2D-RECU 01.01.2026"))  // unmatched NO
	d.add(debtRecord("C2", "OP-2", 20, models.MustRefundYes, "M2D-RECU 02.01.2026")) // matched SI
	d.add(debtRecord("C3", "OP-3", 30, models.MustRefundNo, "M2D-RECU 03.01.2026"))  // matched NO, clean

	c := &pileFixture{role: models.RoleCredit}
	c.add(creditRecord("C2", "OP-2", 20, "M6D-DEV 01.05.2026"))
	c.add(creditRecord("C3", "OP-3", 30, "M6D-DEV 01.05.2026"))
	return d, c
}

type pileFixture struct {
	role    models.Role
	records []*models.Record
}

func (f *pileFixture) add(r *models.Record) { f.records = append(f.records, r) }

func TestClassifyScenarioBuckets(t *testing.T) {
	d, c := classifierFixture()
	debt := buildPile(d.role, d.records...)
	credit := buildPile(c.role, c.records...)

	pairs := Match(debt, credit)
	variances, badKeys := AnalyzeVariance(pairs, testTolerance)
	if len(variances) != 0 {
		t.Fatalf("fixture should be variance-free, got %v", variances)
	}

	cls := Classify(debt, pairs, badKeys)

	if len(cls.PendingClaims) != 1 {
		t.Fatalf("expected 1 pending claim, got %d", len(cls.PendingClaims))
	}
	if cls.PendingClaims[0].Card != "C1" {
		t.Errorf("C1 should be the pending claim, got %s", cls.PendingClaims[0].Card)
	}

	if len(cls.UnexpectedRefunds) != 1 {
		t.Fatalf("expected 1 unexpected refund, got %d", len(cls.UnexpectedRefunds))
	}
	if cls.UnexpectedRefunds[0].Card != "C2" {
		t.Errorf("C2 should be the unexpected refund, got %s", cls.UnexpectedRefunds[0].Card)
	}

	if !cls.ReconciledFiles["M2D-RECU 03.01.2026"] {
		t.Error("C3's file should be fully reconciled")
	}
	if cls.ReconciledFiles["M2D-RECU 01.01.2026"] || cls.ReconciledFiles["M2D-RECU 02.01.2026"] {
		t.Error("pending and unexpected files must not be fully reconciled")
	}
}

func TestClassifyFullyReconciledRows(t *testing.T) {
	d, c := classifierFixture()
	debt := buildPile(d.role, d.records...)
	credit := buildPile(c.role, c.records...)

	pairs := Match(debt, credit)
	_, badKeys := AnalyzeVariance(pairs, testTolerance)
	cls := Classify(debt, pairs, badKeys)

	// One grouping row plus the TOTAL sentinel.
	if len(cls.FullyReconciled) != 2 {
		t.Fatalf("expected 1 grouping row + TOTAL, got %d", len(cls.FullyReconciled))
	}
	row := cls.FullyReconciled[0]
	if row.DebtorFile != "M2D-RECU 03.01.2026" || row.CreditFile != "M6D-DEV 01.05.2026" {
		t.Errorf("unexpected grouping: %+v", row)
	}
	if !row.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected amount 30, got %s", row.Amount)
	}

	total := cls.FullyReconciled[1]
	if total.DebtorFile != TotalLabel {
		t.Errorf("last row must be the TOTAL sentinel, got %q", total.DebtorFile)
	}
	if !total.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("TOTAL should carry the grand sum, got %s", total.Amount)
	}
}

func TestClassifyVarianceTaintExcludesFile(t *testing.T) {
	// A single NO row matched with a short refund: no pending claim and no
	// unexpected refund, but the variance must still block full status.
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C1", "OP-1", 90, "M6D-DEV 01.05.2026"),
	)

	pairs := Match(debt, credit)
	variances, badKeys := AnalyzeVariance(pairs, testTolerance)
	if len(variances) != 1 {
		t.Fatalf("fixture should carry one variance, got %d", len(variances))
	}

	cls := Classify(debt, pairs, badKeys)
	if len(cls.FullyReconciled) != 0 {
		t.Errorf("variance-tainted file must not be fully reconciled, got %v", cls.FullyReconciled)
	}
	if cls.ReconciledFiles["M2D-RECU 01.01.2026"] {
		t.Error("tainted file marked reconciled")
	}
}

func TestClassifyFileWithoutRefundRowsNotReconciled(t *testing.T) {
	// All rows SI: nothing to reconcile, the file stays off the sheet.
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 100, models.MustRefundYes, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C9", "OP-9", 100, "M6D-DEV 01.05.2026"),
	)

	pairs := Match(debt, credit)
	cls := Classify(debt, pairs, nil)
	if len(cls.FullyReconciled) != 0 {
		t.Errorf("a file without NO rows must not appear, got %v", cls.FullyReconciled)
	}
}

func TestClassifyDebtSideSumInvariant(t *testing.T) {
	// Two debt rows of 100 and 150 against one credit of 250 on the same
	// key: the reconciled amount is 250 (debt side), never 500.
	debt := buildPile(models.RoleDebt,
		debtRecord("1234", "OP-001", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
		debtRecord("1234", "OP-001", 150, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("1234", "OP-001", 250, "M6D-DEV 01.05.2026"),
	)

	pairs := Match(debt, credit)
	_, badKeys := AnalyzeVariance(pairs, testTolerance)
	cls := Classify(debt, pairs, badKeys)

	if len(cls.FullyReconciled) != 2 {
		t.Fatalf("expected 1 grouping row + TOTAL, got %d", len(cls.FullyReconciled))
	}
	if !cls.FullyReconciled[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("amount must sum the debt side only, got %s", cls.FullyReconciled[0].Amount)
	}
}

func TestBreakdownSumsDebtSide(t *testing.T) {
	debt := buildPile(models.RoleDebt,
		debtRecord("1234", "OP-001", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
		debtRecord("1234", "OP-001", 150, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("1234", "OP-001", 250, "M6D-DEV 01.05.2026"),
	)

	pairs := Match(debt, credit)

	byDebt := BreakdownByDebtFile(pairs)
	if len(byDebt) != 1 {
		t.Fatalf("expected 1 debt grouping, got %d", len(byDebt))
	}
	if byDebt[0].Operations != 2 {
		t.Errorf("expected 2 operations, got %d", byDebt[0].Operations)
	}
	if !byDebt[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("debt breakdown should sum 100+150=250, got %s", byDebt[0].Amount)
	}

	byCredit := BreakdownByCreditFile(pairs)
	if len(byCredit) != 1 {
		t.Fatalf("expected 1 credit grouping, got %d", len(byCredit))
	}
	if !byCredit[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("credit breakdown also sums the debt side, got %s", byCredit[0].Amount)
	}
	if byCredit[0].Primary != "M6D-DEV 01.05.2026" {
		t.Errorf("credit breakdown keys on the credit file, got %s", byCredit[0].Primary)
	}
}

func TestBreakdownSorted(t *testing.T) {
	debt := buildPile(models.RoleDebt,
		debtRecord("B", "OP-2", 20, models.MustRefundNo, "M2D-RECU 02.01.2026"),
		debtRecord("A", "OP-1", 10, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("A", "OP-1", 10, "M6D-DEV 01.05.2026"),
		creditRecord("B", "OP-2", 20, "M6D-DEV 01.05.2026"),
	)

	rows := BreakdownByDebtFile(Match(debt, credit))
	if len(rows) != 2 {
		t.Fatalf("expected 2 groupings, got %d", len(rows))
	}
	if rows[0].Primary > rows[1].Primary {
		t.Error("breakdown rows must be sorted by primary file")
	}
}
