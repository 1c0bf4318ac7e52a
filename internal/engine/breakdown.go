package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BreakdownRow is one (primary file, secondary file) grouping of matched
// pairs. The amount is always the summed DEBT side: under Cartesian
// duplication the repeated credit amount would inflate the subtotal.
type BreakdownRow struct {
	Primary    string
	Secondary  string
	Operations int
	Amount     decimal.Decimal
}

// BreakdownByDebtFile answers "for this debt file, which credit files
// cleared it, and for how much?".
func BreakdownByDebtFile(pairs []MatchedPair) []BreakdownRow {
	return breakdown(pairs, func(p MatchedPair) (string, string) {
		return p.Debt.SourceRef, p.Credit.SourceRef
	})
}

// BreakdownByCreditFile answers "for this credit file, which debt files
// did it pay off?". Still sums the debt side: the value of debt covered.
func BreakdownByCreditFile(pairs []MatchedPair) []BreakdownRow {
	return breakdown(pairs, func(p MatchedPair) (string, string) {
		return p.Credit.SourceRef, p.Debt.SourceRef
	})
}

func breakdown(pairs []MatchedPair, grouping func(MatchedPair) (string, string)) []BreakdownRow {
	type groupKey struct{ primary, secondary string }

	groups := make(map[groupKey]*BreakdownRow)
	for _, p := range pairs {
		primary, secondary := grouping(p)
		gk := groupKey{primary, secondary}
		row, ok := groups[gk]
		if !ok {
			row = &BreakdownRow{Primary: primary, Secondary: secondary, Amount: decimal.Zero}
			groups[gk] = row
		}
		row.Operations++
		row.Amount = row.Amount.Add(p.Debt.Amount)
	}

	rows := make([]BreakdownRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Primary != rows[j].Primary {
			return rows[i].Primary < rows[j].Primary
		}
		return rows[i].Secondary < rows[j].Secondary
	})
	return rows
}
