// Package models defines the core data structures for the conciliation engine.
package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Role identifies which side of the conciliation a record belongs to.
type Role string

const (
	RoleDebt   Role = "DEBT"
	RoleCredit Role = "CREDIT"
)

// MustRefund is the per-row refund flag carried by debt notes.
// The source column holds "SI" (a normal charge) or "NO" (a refund is
// contractually expected). Files without the column default every row to SI.
type MustRefund string

const (
	MustRefundYes MustRefund = "SI"
	MustRefundNo  MustRefund = "NO"
)

// ParseMustRefund normalizes a raw cell value into a MustRefund flag.
// Empty values default to SI.
func ParseMustRefund(raw string) MustRefund {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return MustRefundYes
	}
	return MustRefund(v)
}

// IsNo reports whether the flag marks the row as awaiting a refund.
func (m MustRefund) IsNo() bool {
	return m == MustRefundNo
}

// Key is the composite business key joining debt and credit records.
// It is NOT unique: several rows may legally share a key, and aggregation
// sums them instead of deduplicating.
type Key struct {
	Card      string
	Operation string
}

// String returns a human-readable form used in log and error messages.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Card, k.Operation)
}

// Record is one normalized row from a source spreadsheet.
type Record struct {
	Card       string
	Operation  string
	Amount     decimal.Decimal
	RawAmount  string
	MustRefund MustRefund
	SourceRef  string
}

// Key returns the record's composite business key.
func (r *Record) Key() Key {
	return Key{Card: r.Card, Operation: r.Operation}
}

// HasKey reports whether at least one of the key fields is non-blank.
// Rows failing this are trailing filler and get dropped at load time.
func (r *Record) HasKey() bool {
	return strings.TrimSpace(r.Card) != "" || strings.TrimSpace(r.Operation) != ""
}

var amountCleanPattern = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount converts free-form monetary text into a decimal amount.
// Everything outside [0-9.-] is stripped first, so currency symbols and
// thousands separators survive the trip from hand-edited spreadsheets.
// Unparsable values become zero rather than failing the load.
func ParseAmount(raw string) decimal.Decimal {
	cleaned := amountCleanPattern.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

var dateTokenPattern = regexp.MustCompile(`\d+[.\-]\d+[.\-]\d+`)

// BuildSourceRef derives the normalized file label used throughout the
// pipeline: the pile's type tag plus a date token pulled from the filename.
// A filename carrying neither keyword is labeled UNKNOWN with the raw name
// so it still shows up recognizably in the report.
func BuildSourceRef(filename string) string {
	base := filepath.Base(filename)
	lower := strings.ToLower(base)

	date := dateTokenPattern.FindString(lower)
	if date == "" {
		date = "NO_DATE"
	}

	switch {
	case strings.Contains(lower, "m2d-recu"):
		return "M2D-RECU " + date
	case strings.Contains(lower, "m6d-dev"):
		return "M6D-DEV " + date
	default:
		return "UNKNOWN " + base
	}
}

// SourceTypeToken returns the leading type tag of a source ref
// (e.g. "M2D-RECU"), used by the cross-pile duplicate check.
func SourceTypeToken(sourceRef string) string {
	fields := strings.Fields(sourceRef)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CompareWithTolerance reports whether two amounts differ by no more than
// the given tolerance.
func CompareWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
