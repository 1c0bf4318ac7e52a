package engine

import (
	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"

	"github.com/shopspring/decimal"
)

// OrphanAnalysis separates unmatched records by side. The two sides carry
// very different weight: a debt without a refund is normal business, a
// refund without a charge violates the books.
type OrphanAnalysis struct {
	OrphanedDebtKeys    []models.Key
	OrphanedDebtTotal   decimal.Decimal
	OrphanedDebtCount   int
	OrphanedCreditKeys  []models.Key
	OrphanedCreditTotal decimal.Decimal
	OrphanedCreditCount int
}

// HasOrphanedCredits reports whether the blocking condition holds.
func (a *OrphanAnalysis) HasOrphanedCredits() bool {
	return len(a.OrphanedCreditKeys) > 0
}

// SampleOrphanedCredits returns up to max example keys for error messages.
func (a *OrphanAnalysis) SampleOrphanedCredits(max int) []string {
	n := len(a.OrphanedCreditKeys)
	if n > max {
		n = max
	}
	samples := make([]string, n)
	for i := 0; i < n; i++ {
		samples[i] = a.OrphanedCreditKeys[i].String()
	}
	return samples
}

// AnalyzeOrphans finds the keys on each side that never matched, with row
// counts and summed amounts per side.
func AnalyzeOrphans(debt, credit *loader.Pile, pairs []MatchedPair) *OrphanAnalysis {
	matched := MatchedKeySet(pairs)

	analysis := &OrphanAnalysis{
		OrphanedDebtTotal:   decimal.Zero,
		OrphanedCreditTotal: decimal.Zero,
	}

	seenDebt := make(map[models.Key]bool)
	for _, r := range debt.Records {
		key := r.Key()
		if matched[key] {
			continue
		}
		analysis.OrphanedDebtCount++
		analysis.OrphanedDebtTotal = analysis.OrphanedDebtTotal.Add(r.Amount)
		if !seenDebt[key] {
			seenDebt[key] = true
			analysis.OrphanedDebtKeys = append(analysis.OrphanedDebtKeys, key)
		}
	}

	seenCredit := make(map[models.Key]bool)
	for _, r := range credit.Records {
		key := r.Key()
		if matched[key] {
			continue
		}
		analysis.OrphanedCreditCount++
		analysis.OrphanedCreditTotal = analysis.OrphanedCreditTotal.Add(r.Amount)
		if !seenCredit[key] {
			seenCredit[key] = true
			analysis.OrphanedCreditKeys = append(analysis.OrphanedCreditKeys, key)
		}
	}

	return analysis
}
