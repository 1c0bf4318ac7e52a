package engine

import (
	"sort"

	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"

	"github.com/shopspring/decimal"
)

// TotalLabel is the sentinel debtor-file value of the grand-total row on
// the fully reconciled sheet.
const TotalLabel = "TOTAL"

// PendingClaim is a debt row awaiting a refund that never arrived.
type PendingClaim struct {
	SourceRef string
	Card      string
	Operation string
	Amount    decimal.Decimal
}

// UnexpectedRefund is a matched pair whose debt side was a normal charge:
// a refund was issued where none was expected.
type UnexpectedRefund struct {
	DebtSource   string
	CreditSource string
	Card         string
	Operation    string
	DebtAmount   decimal.Decimal
	CreditAmount decimal.Decimal
}

// ReconciledNote is one (debt file, credit file) grouping on the fully
// reconciled sheet, amounts summed from the DEBT side so repeated credit
// rows never inflate the total.
type ReconciledNote struct {
	DebtorFile string
	CreditFile string
	Amount     decimal.Decimal
}

// Classification holds the scenario buckets for one run.
type Classification struct {
	PendingClaims     []PendingClaim
	UnexpectedRefunds []UnexpectedRefund
	FullyReconciled   []ReconciledNote

	// ReconciledFiles marks the debt files that earned full status.
	ReconciledFiles map[string]bool
	// PendingFiles and UnexpectedFiles mark debt files touched by each
	// scenario; the net-balance resolver works from these.
	PendingFiles    map[string]bool
	UnexpectedFiles map[string]bool
}

// Classify buckets every debt row by refund flag and match status, then
// applies the strict exclusion rules deciding which debt files report as
// fully reconciled.
func Classify(debt *loader.Pile, pairs []MatchedPair, badCreditKeys map[CreditKey]bool) *Classification {
	matched := MatchedKeySet(pairs)

	cls := &Classification{
		ReconciledFiles: make(map[string]bool),
		PendingFiles:    make(map[string]bool),
		UnexpectedFiles: make(map[string]bool),
	}

	for _, r := range debt.Records {
		if r.MustRefund.IsNo() && !matched[r.Key()] {
			cls.PendingClaims = append(cls.PendingClaims, PendingClaim{
				SourceRef: r.SourceRef,
				Card:      r.Card,
				Operation: r.Operation,
				Amount:    r.Amount,
			})
			cls.PendingFiles[r.SourceRef] = true
		}
	}

	for _, p := range pairs {
		if !p.Debt.MustRefund.IsNo() {
			cls.UnexpectedRefunds = append(cls.UnexpectedRefunds, UnexpectedRefund{
				DebtSource:   p.Debt.SourceRef,
				CreditSource: p.Credit.SourceRef,
				Card:         p.Debt.Card,
				Operation:    p.Debt.Operation,
				DebtAmount:   p.Debt.Amount,
				CreditAmount: p.Credit.Amount,
			})
			cls.UnexpectedFiles[p.Debt.SourceRef] = true
		}
	}

	cls.FullyReconciled = fullyReconciledNotes(debt, pairs, matched, badCreditKeys, cls)
	return cls
}

// fullyReconciledNotes applies the five-way exclusion: a debt file reports
// as fully reconciled only when it has refund-flagged rows, none of them
// pending or unexpectedly refunded, all of them matched, and none touching
// a credit occurrence with a variance.
func fullyReconciledNotes(debt *loader.Pile, pairs []MatchedPair, matched map[models.Key]bool, badCreditKeys map[CreditKey]bool, cls *Classification) []ReconciledNote {
	pairsByDebtFile := make(map[string][]MatchedPair)
	for _, p := range pairs {
		pairsByDebtFile[p.Debt.SourceRef] = append(pairsByDebtFile[p.Debt.SourceRef], p)
	}

	var files []string
	for ref := range debt.Files {
		files = append(files, ref)
	}
	sort.Strings(files)

	var notes []ReconciledNote
	grandTotal := decimal.Zero

	for _, file := range files {
		rows := debt.Files[file]

		refundRows := 0
		allMatched := true
		for _, r := range rows {
			if !r.MustRefund.IsNo() {
				continue
			}
			refundRows++
			if !matched[r.Key()] {
				allMatched = false
			}
		}
		if refundRows == 0 {
			continue
		}
		if cls.PendingFiles[file] || cls.UnexpectedFiles[file] {
			continue
		}
		// Redundant with the pending check above, kept as a separate
		// verification of the matched set itself.
		if !allMatched {
			continue
		}

		tainted := false
		byCreditFile := make(map[string]decimal.Decimal)
		var creditFiles []string
		for _, p := range pairsByDebtFile[file] {
			if !p.Debt.MustRefund.IsNo() {
				continue
			}
			if badCreditKeys[CreditKey{
				Source:    p.Credit.SourceRef,
				Card:      p.Credit.Card,
				Operation: p.Credit.Operation,
			}] {
				tainted = true
				break
			}
			if _, ok := byCreditFile[p.Credit.SourceRef]; !ok {
				creditFiles = append(creditFiles, p.Credit.SourceRef)
			}
			byCreditFile[p.Credit.SourceRef] = byCreditFile[p.Credit.SourceRef].Add(p.Debt.Amount)
		}
		if tainted {
			continue
		}

		cls.ReconciledFiles[file] = true
		sort.Strings(creditFiles)
		for _, creditFile := range creditFiles {
			amount := byCreditFile[creditFile]
			notes = append(notes, ReconciledNote{
				DebtorFile: file,
				CreditFile: creditFile,
				Amount:     amount,
			})
			grandTotal = grandTotal.Add(amount)
		}
	}

	if len(notes) > 0 {
		notes = append(notes, ReconciledNote{
			DebtorFile: TotalLabel,
			Amount:     grandTotal,
		})
	}
	return notes
}
