package quality

import (
	"fmt"
	"sort"
	"strings"

	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"
	"creditnote-conciliator/pkg/logger"

	"github.com/shopspring/decimal"
)

// DetectorConfig holds the duplicate-detection thresholds.
type DetectorConfig struct {
	// Intra-pile key overlap above this percentage is flagged.
	IntraOverlapPct float64
	// Cross-pile key overlap above this percentage, with equal row counts,
	// is flagged.
	CrossOverlapPct float64
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		IntraOverlapPct: 90,
		CrossOverlapPct: 95,
	}
}

// DuplicateDetector catches accidental re-submission of the same export:
// the same file loaded twice under two names, or the same data fed to both
// sides of the conciliation.
type DuplicateDetector struct {
	config *DetectorConfig
	logger logger.Logger
}

// NewDuplicateDetector creates a detector.
func NewDuplicateDetector(config *DetectorConfig) *DuplicateDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &DuplicateDetector{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("duplicates"),
	}
}

// CheckIntraPile compares every pair of files within one pile. Every
// returned issue is blocking. Pairs with different row counts are skipped
// outright; a re-submitted export always carries the same rows.
func (d *DuplicateDetector) CheckIntraPile(pile *loader.Pile) []Issue {
	var issues []Issue

	refs := pile.SourceRefs()
	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			rowsA := pile.Files[refs[i]]
			rowsB := pile.Files[refs[j]]
			if len(rowsA) != len(rowsB) {
				continue
			}

			keysA := keySetOf(rowsA)
			keysB := keySetOf(rowsB)

			if keySetsEqual(keysA, keysB) {
				if contentFingerprint(rowsA) == contentFingerprint(rowsB) {
					issues = append(issues, Issue{
						Severity:  SeverityError,
						SourceRef: refs[i],
						Check:     "duplicate_files",
						Message:   fmt.Sprintf("DUPLICATE FILES: '%s' and '%s' hold identical rows", refs[i], refs[j]),
					})
				} else {
					issues = append(issues, Issue{
						Severity:  SeverityError,
						SourceRef: refs[i],
						Check:     "suspicious_files",
						Message:   fmt.Sprintf("SUSPICIOUS: '%s' and '%s' share every key but differ in content", refs[i], refs[j]),
					})
				}
				continue
			}

			if pct := overlapPercent(keysA, keysB); pct > d.config.IntraOverlapPct {
				issues = append(issues, Issue{
					Severity:  SeverityError,
					SourceRef: refs[i],
					Check:     "key_overlap",
					Message:   fmt.Sprintf("WARNING: '%s' and '%s' share %.1f%% of their keys", refs[i], refs[j], pct),
				})
			}
		}
	}

	for _, issue := range issues {
		d.logger.WithFields(logger.Fields{
			"pile":  string(pile.Role),
			"check": issue.Check,
		}).Error(issue.Message)
	}

	return issues
}

// CheckCrossPile compares the full debt pile against the full credit pile.
// Any finding means the same export very likely landed on both sides, and
// the run must stop before matching turns it into nonsense results.
func (d *DuplicateDetector) CheckCrossPile(debt, credit *loader.Pile) []Issue {
	var issues []Issue

	if len(debt.Records) > 0 && contentFingerprint(debt.Records) == contentFingerprint(credit.Records) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Check:    "pile_content_match",
			Message:  "debt and credit piles hold identical rows",
		})
	}

	debtKeys := debt.KeySet()
	creditKeys := credit.KeySet()
	if len(debt.Records) == len(credit.Records) {
		if pct := overlapPercent(debtKeys, creditKeys); pct > d.config.CrossOverlapPct {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Check:    "pile_key_overlap",
				Message:  fmt.Sprintf("debt and credit piles share %.1f%% of their keys with equal row counts", pct),
			})
		}
	}

	if amountFingerprintsEqual(debt.Records, credit.Records) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Check:    "pile_amount_fingerprint",
			Message:  "debt and credit piles carry identical amount sum, mean and row count",
		})
	}

	if tokens := sharedTypeTokens(debt, credit); tokens != "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Check:    "pile_type_collision",
			Message:  fmt.Sprintf("both piles carry the same file type tag (%s); one side was loaded with the wrong export", tokens),
		})
	}

	for _, issue := range issues {
		d.logger.WithField("check", issue.Check).Error(issue.Message)
	}

	return issues
}

func keySetOf(rows []*models.Record) map[models.Key]bool {
	keys := make(map[models.Key]bool, len(rows))
	for _, r := range rows {
		keys[r.Key()] = true
	}
	return keys
}

func keySetsEqual(a, b map[models.Key]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// overlapPercent measures the shared keys relative to the first set.
func overlapPercent(a, b map[models.Key]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	return float64(shared) / float64(len(a)) * 100
}

// contentFingerprint renders the compare columns (key fields plus the raw
// amount, source metadata excluded) sorted, so row order does not matter.
func contentFingerprint(rows []*models.Record) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.Card + "\x1f" + r.Operation + "\x1f" + r.RawAmount
	}
	sort.Strings(lines)
	return strings.Join(lines, "\x1e")
}

func amountFingerprintsEqual(a, b []*models.Record) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	// Equal sums with equal counts imply equal means.
	return sumAmounts(a).Equal(sumAmounts(b))
}

func sumAmounts(rows []*models.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}

// sharedTypeTokens reports the type tag present on both sides, or "" when
// the piles carry distinct tags as expected.
func sharedTypeTokens(debt, credit *loader.Pile) string {
	debtTypes := typeTokenSet(debt)
	creditTypes := typeTokenSet(credit)
	if len(debtTypes) == 0 || len(debtTypes) != len(creditTypes) {
		return ""
	}
	var shared []string
	for token := range debtTypes {
		if !creditTypes[token] {
			return ""
		}
		shared = append(shared, token)
	}
	sort.Strings(shared)
	return strings.Join(shared, ", ")
}

func typeTokenSet(pile *loader.Pile) map[string]bool {
	tokens := make(map[string]bool)
	for ref := range pile.Files {
		tokens[models.SourceTypeToken(ref)] = true
	}
	return tokens
}
