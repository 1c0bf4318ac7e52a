package engine

import (
	"testing"

	"creditnote-conciliator/internal/models"

	"github.com/shopspring/decimal"
)

var testTolerance = decimal.NewFromFloat(0.01)

func TestVarianceUnderpaid(t *testing.T) {
	// Debt 100 matched to credit 90: the refund fell short by 10.
	debt := buildPile(models.RoleDebt,
		debtRecord("CardB", "OP-B", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("CardB", "OP-B", 90, "M6D-DEV 01.05.2026"),
	)

	entries, badKeys := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 1 {
		t.Fatalf("expected 1 variance entry, got %d", len(entries))
	}
	e := entries[0]
	if !e.Variance.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("expected variance -10, got %s", e.Variance)
	}
	if e.Status != StatusUnderpaid {
		t.Errorf("expected UNDERPAID, got %s", e.Status)
	}
	if !badKeys[CreditKey{Source: "M6D-DEV 01.05.2026", Card: "CardB", Operation: "OP-B"}] {
		t.Error("variance must register the credit key as bad")
	}
}

func TestVarianceOverpaid(t *testing.T) {
	// Debt 100 matched to credit 110: the refund overshot by 10.
	debt := buildPile(models.RoleDebt,
		debtRecord("CardC", "OP-C", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("CardC", "OP-C", 110, "M6D-DEV 01.05.2026"),
	)

	entries, _ := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 1 {
		t.Fatalf("expected 1 variance entry, got %d", len(entries))
	}
	if !entries[0].Variance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected variance +10, got %s", entries[0].Variance)
	}
	if entries[0].Status != StatusOverpaid {
		t.Errorf("expected OVERPAID, got %s", entries[0].Status)
	}
}

func TestVarianceMultiDebtCoverageIsClean(t *testing.T) {
	// One credit of 100 covering two debts of 50: variance zero, excluded.
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 50, models.MustRefundNo, "M2D-RECU 01.01.2026"),
		debtRecord("C1", "OP-1", 50, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C1", "OP-1", 100, "M6D-DEV 01.05.2026"),
	)

	entries, badKeys := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 0 {
		t.Fatalf("exact multi-debt coverage must not produce a variance, got %v", entries)
	}
	if len(badKeys) != 0 {
		t.Error("clean coverage must not taint the credit key")
	}
}

func TestVarianceWithinToleranceExcluded(t *testing.T) {
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C1", "OP-1", 100.01, "M6D-DEV 01.05.2026"),
	)

	entries, _ := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 0 {
		t.Errorf("a 0.01 difference sits inside tolerance, got %v", entries)
	}
}

func TestVarianceJustOutsideToleranceIncluded(t *testing.T) {
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C1", "OP-1", 100.02, "M6D-DEV 01.05.2026"),
	)

	entries, _ := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 1 {
		t.Fatalf("a 0.02 difference exceeds tolerance, got %d entries", len(entries))
	}
	if entries[0].Status != StatusOverpaid {
		t.Errorf("expected OVERPAID, got %s", entries[0].Status)
	}
}

func TestVarianceGroupsPerCreditOccurrence(t *testing.T) {
	// Two distinct credit files refund the same key; each occurrence is
	// its own group covering all the key's debts.
	debt := buildPile(models.RoleDebt,
		debtRecord("C1", "OP-1", 100, models.MustRefundNo, "M2D-RECU 01.01.2026"),
	)
	credit := buildPile(models.RoleCredit,
		creditRecord("C1", "OP-1", 90, "M6D-DEV 01.05.2026"),
		creditRecord("C1", "OP-1", 120, "M6D-DEV 01.06.2026"),
	)

	entries, _ := AnalyzeVariance(Match(debt, credit), testTolerance)
	if len(entries) != 2 {
		t.Fatalf("expected one entry per credit occurrence, got %d", len(entries))
	}
	// Sorted by credit source.
	if entries[0].CreditSource != "M6D-DEV 01.05.2026" || entries[0].Status != StatusUnderpaid {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].CreditSource != "M6D-DEV 01.06.2026" || entries[1].Status != StatusOverpaid {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}
