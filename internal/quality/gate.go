// Package quality validates loaded piles before matching: per-file data
// checks plus duplicate-file detection within and across piles.
package quality

import (
	"fmt"
	"math"
	"strings"

	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"
	"creditnote-conciliator/pkg/logger"
)

// Severity separates findings that abort the run from findings that are
// only surfaced.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one finding from a validation check.
type Issue struct {
	Severity  Severity
	SourceRef string
	Check     string
	Message   string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(i.Severity)), i.SourceRef, i.Message)
}

// Report collects the findings for one pile.
type Report struct {
	PileRole models.Role
	Issues   []Issue
}

// Errors returns the blocking findings.
func (r *Report) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Warnings returns the non-blocking findings.
func (r *Report) Warnings() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

// HasErrors reports whether any finding blocks the run.
func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary renders the blocking findings for error messages.
func (r *Report) Summary() string {
	errs := r.Errors()
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, issue := range errs {
		parts = append(parts, fmt.Sprintf("%s (%s)", issue.Message, issue.SourceRef))
	}
	return strings.Join(parts, "; ")
}

// GateConfig holds the tunable thresholds of the quality gate.
type GateConfig struct {
	// Outlier detection only runs on files with more rows than this.
	OutlierMinRows int
	// Amounts beyond mean + OutlierStdDevs * stddev are flagged.
	OutlierStdDevs float64
}

// DefaultGateConfig returns the standard thresholds.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		OutlierMinRows: 10,
		OutlierStdDevs: 3,
	}
}

// Gate runs the per-file data quality checks.
type Gate struct {
	config *GateConfig
	logger logger.Logger
}

// NewGate creates a quality gate.
func NewGate(config *GateConfig) *Gate {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &Gate{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("quality"),
	}
}

// CheckPile validates every file of a pile and returns the combined report.
// Blocking errors do not stop the scan; the whole pile is checked so the
// operator sees every problem at once.
func (g *Gate) CheckPile(pile *loader.Pile) *Report {
	report := &Report{PileRole: pile.Role}

	for _, sourceRef := range pile.SourceRefs() {
		rows := pile.Files[sourceRef]
		report.Issues = append(report.Issues, g.checkFile(sourceRef, rows)...)
	}

	for _, issue := range report.Issues {
		entry := g.logger.WithFields(logger.Fields{
			"pile":       string(pile.Role),
			"source_ref": issue.SourceRef,
			"check":      issue.Check,
		})
		if issue.Severity == SeverityError {
			entry.Error(issue.Message)
		} else {
			entry.Warn(issue.Message)
		}
	}

	return report
}

func (g *Gate) checkFile(sourceRef string, rows []*models.Record) []Issue {
	var issues []Issue

	negative := 0
	zero := 0
	emptyCard := 0
	whitespaceCard := 0
	emptyOp := 0
	dupCount := map[models.Key]int{}

	for _, r := range rows {
		if r.Amount.IsNegative() {
			negative++
		}
		if r.Amount.IsZero() {
			zero++
		}
		switch {
		case r.Card == "":
			emptyCard++
		case strings.TrimSpace(r.Card) == "":
			// Only reachable for records built outside the loader, which
			// trims key fields on the way in. Kept as its own check so the
			// gate stands alone.
			whitespaceCard++
		}
		if strings.TrimSpace(r.Operation) == "" {
			emptyOp++
		}
		dupCount[r.Key()]++
	}

	if negative > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityWarning,
			SourceRef: sourceRef,
			Check:     "negative_amounts",
			Message:   fmt.Sprintf("%d rows carry negative amounts", negative),
		})
	}
	if zero > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityWarning,
			SourceRef: sourceRef,
			Check:     "zero_amounts",
			Message:   fmt.Sprintf("%d rows carry zero amounts", zero),
		})
	}
	if emptyCard > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityError,
			SourceRef: sourceRef,
			Check:     "empty_card",
			Message:   fmt.Sprintf("%d rows have an empty card identifier", emptyCard),
		})
	}
	if whitespaceCard > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityError,
			SourceRef: sourceRef,
			Check:     "whitespace_card",
			Message:   fmt.Sprintf("%d rows have a whitespace-only card identifier", whitespaceCard),
		})
	}
	if emptyOp > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityError,
			SourceRef: sourceRef,
			Check:     "empty_operation",
			Message:   fmt.Sprintf("%d rows have an empty operation number", emptyOp),
		})
	}

	internalDups := 0
	for _, n := range dupCount {
		if n > 1 {
			internalDups++
		}
	}
	if internalDups > 0 {
		// Duplicates are a supported scenario in matching; flag, don't block.
		issues = append(issues, Issue{
			Severity:  SeverityWarning,
			SourceRef: sourceRef,
			Check:     "internal_duplicates",
			Message:   fmt.Sprintf("%d key combinations repeat within the file", internalDups),
		})
	}

	if outliers := g.countOutliers(rows); outliers > 0 {
		issues = append(issues, Issue{
			Severity:  SeverityWarning,
			SourceRef: sourceRef,
			Check:     "outlier_amounts",
			Message:   fmt.Sprintf("%d amounts exceed mean plus %.0f standard deviations", outliers, g.config.OutlierStdDevs),
		})
	}

	return issues
}

// countOutliers flags amounts above mean + N standard deviations. Sample
// standard deviation, and only for files with enough rows for the statistic
// to mean anything.
func (g *Gate) countOutliers(rows []*models.Record) int {
	if len(rows) <= g.config.OutlierMinRows {
		return 0
	}

	amounts := make([]float64, len(rows))
	sum := 0.0
	for i, r := range rows {
		amounts[i] = r.Amount.InexactFloat64()
		sum += amounts[i]
	}
	mean := sum / float64(len(amounts))

	variance := 0.0
	for _, a := range amounts {
		d := a - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(amounts)-1))
	threshold := mean + g.config.OutlierStdDevs*std

	outliers := 0
	for _, a := range amounts {
		if a > threshold {
			outliers++
		}
	}
	return outliers
}
