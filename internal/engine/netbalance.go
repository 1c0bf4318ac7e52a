package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// NetBalanceRowType labels the contributing rows of a net-balanced file.
type NetBalanceRowType string

const (
	RowPendingClaim     NetBalanceRowType = "PENDING_CLAIM"
	RowUnexpectedRefund NetBalanceRowType = "UNEXPECTED_REFUND"
	RowMatchedClaim     NetBalanceRowType = "MATCHED_CLAIM"
)

// NetBalanceRow is one contributing row of a net-balanced debt file.
type NetBalanceRow struct {
	DebtorFile string
	RowType    NetBalanceRowType
	Card       string
	Operation  string
	Amount     decimal.Decimal
}

// ResolveNetBalance inspects every debt file that missed full
// reconciliation but shows up with pending claims or unexpected refunds.
// When the file's pending total offsets its unexpected-refund total within
// tolerance, and at least one side is nonzero, the file is net balanced and
// every contributing row is emitted, with the file's correctly matched
// refund rows included for context.
func ResolveNetBalance(cls *Classification, pairs []MatchedPair, tolerance decimal.Decimal) []NetBalanceRow {
	candidates := make(map[string]bool)
	for file := range cls.PendingFiles {
		if !cls.ReconciledFiles[file] {
			candidates[file] = true
		}
	}
	for file := range cls.UnexpectedFiles {
		if !cls.ReconciledFiles[file] {
			candidates[file] = true
		}
	}

	var files []string
	for file := range candidates {
		files = append(files, file)
	}
	sort.Strings(files)

	var rows []NetBalanceRow
	for _, file := range files {
		pendingTotal := decimal.Zero
		for _, claim := range cls.PendingClaims {
			if claim.SourceRef == file {
				pendingTotal = pendingTotal.Add(claim.Amount)
			}
		}
		unexpectedTotal := decimal.Zero
		for _, refund := range cls.UnexpectedRefunds {
			if refund.DebtSource == file {
				unexpectedTotal = unexpectedTotal.Add(refund.CreditAmount)
			}
		}

		if pendingTotal.IsZero() && unexpectedTotal.IsZero() {
			continue
		}
		if pendingTotal.Sub(unexpectedTotal).Abs().GreaterThanOrEqual(tolerance) {
			continue
		}

		for _, claim := range cls.PendingClaims {
			if claim.SourceRef != file {
				continue
			}
			rows = append(rows, NetBalanceRow{
				DebtorFile: file,
				RowType:    RowPendingClaim,
				Card:       claim.Card,
				Operation:  claim.Operation,
				Amount:     claim.Amount,
			})
		}
		for _, refund := range cls.UnexpectedRefunds {
			if refund.DebtSource != file {
				continue
			}
			rows = append(rows, NetBalanceRow{
				DebtorFile: file,
				RowType:    RowUnexpectedRefund,
				Card:       refund.Card,
				Operation:  refund.Operation,
				Amount:     refund.CreditAmount,
			})
		}
		for _, p := range pairs {
			if p.Debt.SourceRef != file || !p.Debt.MustRefund.IsNo() {
				continue
			}
			rows = append(rows, NetBalanceRow{
				DebtorFile: file,
				RowType:    RowMatchedClaim,
				Card:       p.Debt.Card,
				Operation:  p.Debt.Operation,
				Amount:     p.Debt.Amount,
			})
		}
	}

	return rows
}
