package engine

import (
	"context"
	"fmt"
	"strings"

	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"
	"creditnote-conciliator/internal/quality"
	apperrors "creditnote-conciliator/pkg/errors"
	"creditnote-conciliator/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds the engine settings.
type Config struct {
	// Tolerance is the amount difference treated as equal throughout the
	// engine: variance materialization and net-balance offsetting.
	Tolerance decimal.Decimal
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() *Config {
	return &Config{
		Tolerance: decimal.NewFromFloat(0.01),
	}
}

// Validate checks the configuration for sanity
func (c *Config) Validate() error {
	if c.Tolerance.IsNegative() {
		return fmt.Errorf("tolerance cannot be negative")
	}
	return nil
}

// Result carries every table a completed run materialized.
type Result struct {
	DebtPile   *loader.Pile
	CreditPile *loader.Pile

	Pairs           []MatchedPair
	Orphans         *OrphanAnalysis
	Variances       []VarianceEntry
	Classification  *Classification
	NetBalanced     []NetBalanceRow
	DebtBreakdown   []BreakdownRow
	CreditBreakdown []BreakdownRow

	Warnings []quality.Issue

	// NoMatches marks the informational early end: both piles loaded
	// clean but share no keys. Not an error, and no report is written.
	NoMatches bool
}

// Pipeline drives the conciliation stages in order. Any blocking finding
// aborts the run before a report exists; there is no partial output.
type Pipeline struct {
	loader   *loader.Loader
	gate     *quality.Gate
	detector *quality.DuplicateDetector
	config   *Config
	logger   logger.Logger
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(l *loader.Loader, gate *quality.Gate, detector *quality.DuplicateDetector, config *Config) (*Pipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "engine", err.Error(), err)
	}
	if l == nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "loader", nil, nil)
	}
	if gate == nil {
		gate = quality.NewGate(nil)
	}
	if detector == nil {
		detector = quality.NewDuplicateDetector(nil)
	}
	return &Pipeline{
		loader:   l,
		gate:     gate,
		detector: detector,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// Run executes the full conciliation and returns the materialized result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.logger.Info("Loading debt pile")
	debt, err := p.loader.LoadPile(models.RoleDebt)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Loading credit pile")
	credit, err := p.loader.LoadPile(models.RoleCredit)
	if err != nil {
		return nil, err
	}

	if debt.IsEmpty() {
		return nil, apperrors.ValidationError(apperrors.CodeEmptyPile, "debt", "no debt note rows were loaded")
	}
	if credit.IsEmpty() {
		return nil, apperrors.ValidationError(apperrors.CodeEmptyPile, "credit", "no credit note rows were loaded")
	}
	p.logger.WithFields(logger.Fields{
		"debt_rows":    len(debt.Records),
		"credit_rows":  len(credit.Records),
		"debt_files":   len(debt.Files),
		"credit_files": len(credit.Files),
	}).Info("Piles loaded")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{DebtPile: debt, CreditPile: credit}

	p.logger.Info("Running quality gate")
	debtReport := p.gate.CheckPile(debt)
	creditReport := p.gate.CheckPile(credit)
	result.Warnings = append(result.Warnings, debtReport.Warnings()...)
	result.Warnings = append(result.Warnings, creditReport.Warnings()...)
	if debtReport.HasErrors() {
		return nil, apperrors.ValidationError(apperrors.CodeQualityFailed, "debt pile", debtReport.Summary())
	}
	if creditReport.HasErrors() {
		return nil, apperrors.ValidationError(apperrors.CodeQualityFailed, "credit pile", creditReport.Summary())
	}

	p.logger.Info("Scanning for duplicate files")
	if issues := p.detector.CheckIntraPile(debt); len(issues) > 0 {
		return nil, duplicateIssuesError(issues)
	}
	if issues := p.detector.CheckIntraPile(credit); len(issues) > 0 {
		return nil, duplicateIssuesError(issues)
	}
	if issues := p.detector.CheckCrossPile(debt, credit); len(issues) > 0 {
		return nil, crossPileError(issues)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Matching piles")
	result.Pairs = Match(debt, credit)
	if len(result.Pairs) == 0 {
		p.logger.Info("No matches found between piles")
		result.NoMatches = true
		return result, nil
	}
	p.logger.WithField("pairs", len(result.Pairs)).Info("Matching complete")

	result.Orphans = AnalyzeOrphans(debt, credit, result.Pairs)
	if result.Orphans.OrphanedDebtCount > 0 {
		p.logger.WithFields(logger.Fields{
			"rows":   result.Orphans.OrphanedDebtCount,
			"amount": result.Orphans.OrphanedDebtTotal.String(),
		}).Info("Orphaned debts present (awaiting future refunds)")
	}
	if result.Orphans.HasOrphanedCredits() {
		samples := result.Orphans.SampleOrphanedCredits(5)
		return nil, apperrors.ConciliationFailure(apperrors.CodeOrphanedCredits, "orphan analysis", nil).
			WithContext("orphaned_keys", len(result.Orphans.OrphanedCreditKeys)).
			WithContext("example_keys", strings.Join(samples, ", "))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Analyzing variances")
	variances, badCreditKeys := AnalyzeVariance(result.Pairs, p.config.Tolerance)
	result.Variances = variances

	p.logger.Info("Classifying scenarios")
	result.Classification = Classify(debt, result.Pairs, badCreditKeys)
	result.NetBalanced = ResolveNetBalance(result.Classification, result.Pairs, p.config.Tolerance)

	result.DebtBreakdown = BreakdownByDebtFile(result.Pairs)
	result.CreditBreakdown = BreakdownByCreditFile(result.Pairs)

	p.logger.WithFields(logger.Fields{
		"pending_claims":     len(result.Classification.PendingClaims),
		"unexpected_refunds": len(result.Classification.UnexpectedRefunds),
		"variances":          len(result.Variances),
		"reconciled_files":   len(result.Classification.ReconciledFiles),
		"net_balanced_rows":  len(result.NetBalanced),
	}).Info("Conciliation complete")

	return result, nil
}

func duplicateIssuesError(issues []quality.Issue) error {
	first := issues[0]
	code := apperrors.CodeKeyOverlap
	switch first.Check {
	case "duplicate_files":
		code = apperrors.CodeDuplicateFiles
	case "suspicious_files":
		code = apperrors.CodeSuspiciousFiles
	}
	err := apperrors.New(apperrors.CategoryDuplicate, code, first.Message)
	return err.
		WithSuggestion("remove or correct the flagged files; the same export was likely submitted twice").
		WithContext("findings", len(issues))
}

func crossPileError(issues []quality.Issue) error {
	messages := make([]string, len(issues))
	for i, issue := range issues {
		messages[i] = issue.Message
	}
	return apperrors.DuplicateError(apperrors.CodePileCollision, "debt pile", "credit pile", strings.Join(messages, "; "))
}
