package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// VarianceStatus classifies the sign of a variance.
type VarianceStatus string

const (
	StatusOverpaid  VarianceStatus = "OVERPAID"
	StatusUnderpaid VarianceStatus = "UNDERPAID"
)

// VarianceEntry is one credit occurrence whose refund amount does not match
// the debts it covers, beyond tolerance.
type VarianceEntry struct {
	CreditSource      string
	Card              string
	Operation         string
	RefundAmount      decimal.Decimal
	TotalDebtsCovered decimal.Decimal
	Variance          decimal.Decimal
	Status            VarianceStatus
}

// CreditKey identifies a credit occurrence by file and business key. Keys
// with any variance land in the bad set and disqualify their debt files
// from fully-reconciled status.
type CreditKey struct {
	Source    string
	Card      string
	Operation string
}

type varianceGroup struct {
	key          CreditKey
	refundAmount decimal.Decimal
	debtsCovered decimal.Decimal
}

// AnalyzeVariance groups the matched pairs by credit occurrence (credit
// file, card, operation, refund amount), sums the debt amounts each one
// covers, and keeps the groups whose variance exceeds the tolerance.
// It also returns the bad-credit-key set feeding the classifier.
func AnalyzeVariance(pairs []MatchedPair, tolerance decimal.Decimal) ([]VarianceEntry, map[CreditKey]bool) {
	type groupKey struct {
		source    string
		card      string
		operation string
		amount    string
	}

	groups := make(map[groupKey]*varianceGroup)
	var order []groupKey
	for _, p := range pairs {
		gk := groupKey{
			source:    p.Credit.SourceRef,
			card:      p.Credit.Card,
			operation: p.Credit.Operation,
			amount:    p.Credit.Amount.String(),
		}
		g, ok := groups[gk]
		if !ok {
			g = &varianceGroup{
				key: CreditKey{
					Source:    p.Credit.SourceRef,
					Card:      p.Credit.Card,
					Operation: p.Credit.Operation,
				},
				refundAmount: p.Credit.Amount,
				debtsCovered: decimal.Zero,
			}
			groups[gk] = g
			order = append(order, gk)
		}
		g.debtsCovered = g.debtsCovered.Add(p.Debt.Amount)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.source != b.source {
			return a.source < b.source
		}
		if a.card != b.card {
			return a.card < b.card
		}
		if a.operation != b.operation {
			return a.operation < b.operation
		}
		return a.amount < b.amount
	})

	var entries []VarianceEntry
	badKeys := make(map[CreditKey]bool)
	for _, gk := range order {
		g := groups[gk]
		variance := g.refundAmount.Sub(g.debtsCovered)
		if variance.Abs().LessThanOrEqual(tolerance) {
			continue
		}

		status := StatusUnderpaid
		if variance.IsPositive() {
			status = StatusOverpaid
		}
		entries = append(entries, VarianceEntry{
			CreditSource:      g.key.Source,
			Card:              g.key.Card,
			Operation:         g.key.Operation,
			RefundAmount:      g.refundAmount,
			TotalDebtsCovered: g.debtsCovered,
			Variance:          variance,
			Status:            status,
		})
		badKeys[g.key] = true
	}

	return entries, badKeys
}
