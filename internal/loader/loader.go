// Package loader reads spreadsheet note files from disk and normalizes them
// into in-memory piles for the conciliation engine.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"creditnote-conciliator/internal/models"
	apperrors "creditnote-conciliator/pkg/errors"
	"creditnote-conciliator/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// Config holds the loader settings: where to look for files, how filenames
// distinguish the two piles, and which column headers carry the key fields.
type Config struct {
	InputDir string

	// Case-insensitive filename substrings identifying each pile.
	DebtKeyword   string
	CreditKeyword string

	// Column headers, matched case-insensitively after trimming.
	CardColumn       string
	OperationColumn  string
	AmountColumn     string
	MustRefundColumn string
}

// DefaultConfig returns the loader configuration matching the standard
// accounting exports.
func DefaultConfig() *Config {
	return &Config{
		InputDir:         "./accounting_files",
		DebtKeyword:      "m2d-recu",
		CreditKeyword:    "m6d-dev",
		CardColumn:       "Card",
		OperationColumn:  "Operation Number",
		AmountColumn:     "Original Amount",
		MustRefundColumn: "RECUPERAR",
	}
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("input directory is required")
	}
	if strings.TrimSpace(c.DebtKeyword) == "" {
		return fmt.Errorf("debt filename keyword is required")
	}
	if strings.TrimSpace(c.CreditKeyword) == "" {
		return fmt.Errorf("credit filename keyword is required")
	}
	if strings.EqualFold(c.DebtKeyword, c.CreditKeyword) {
		return fmt.Errorf("debt and credit keywords must differ")
	}
	if strings.TrimSpace(c.CardColumn) == "" {
		return fmt.Errorf("card column name is required")
	}
	if strings.TrimSpace(c.OperationColumn) == "" {
		return fmt.Errorf("operation column name is required")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column name is required")
	}
	return nil
}

// Pile is the full set of records loaded for one role, plus the per-file
// tables the duplicate detector and classifier group by.
type Pile struct {
	Role    models.Role
	Records []*models.Record

	// Files maps source ref to the rows loaded from that file. Two files
	// normalizing to the same ref (same type and date) land in one entry.
	Files map[string][]*models.Record
}

// IsEmpty reports whether the pile holds no records at all.
func (p *Pile) IsEmpty() bool {
	return len(p.Records) == 0
}

// KeySet returns the set of distinct business keys present in the pile.
func (p *Pile) KeySet() map[models.Key]bool {
	keys := make(map[models.Key]bool, len(p.Records))
	for _, r := range p.Records {
		keys[r.Key()] = true
	}
	return keys
}

// SourceRefs returns the pile's file labels in sorted order.
func (p *Pile) SourceRefs() []string {
	refs := make([]string, 0, len(p.Files))
	for ref := range p.Files {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Loader reads note spreadsheets into piles.
type Loader struct {
	config *Config
	logger logger.Logger
}

// New creates a loader with the given configuration.
func New(config *Config) (*Loader, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "loader", err.Error(), err)
	}
	return &Loader{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("loader"),
	}, nil
}

// LoadPile scans the input directory for spreadsheets whose names carry the
// role's keyword and loads them into one pile. A file that cannot be opened
// aborts the load; a file missing the key columns is skipped with a logged
// reason and the load continues.
func (l *Loader) LoadPile(role models.Role) (*Pile, error) {
	keyword := l.config.DebtKeyword
	if role == models.RoleCredit {
		keyword = l.config.CreditKeyword
	}
	keyword = strings.ToLower(keyword)

	entries, err := os.ReadDir(l.config.InputDir)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeDirectoryError, l.config.InputDir, err)
	}

	pile := &Pile{
		Role:  role,
		Files: make(map[string][]*models.Record),
	}

	matched := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !strings.Contains(lower, keyword) {
			continue
		}
		if !strings.HasSuffix(lower, ".xlsx") && !strings.HasSuffix(lower, ".xlsm") {
			continue
		}
		matched++

		path := filepath.Join(l.config.InputDir, name)
		records, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		if records == nil {
			// Missing key columns, already logged.
			continue
		}

		sourceRef := models.BuildSourceRef(name)
		pile.Records = append(pile.Records, records...)
		pile.Files[sourceRef] = append(pile.Files[sourceRef], records...)

		l.logger.WithFields(logger.Fields{
			"file":       name,
			"source_ref": sourceRef,
			"rows":       len(records),
			"role":       string(role),
		}).Info("Loaded note file")
	}

	if matched == 0 {
		l.logger.WithFields(logger.Fields{
			"role":    string(role),
			"keyword": keyword,
			"dir":     l.config.InputDir,
		}).Warn("No files matched the pile keyword")
	}

	return pile, nil
}

// loadFile reads one spreadsheet into records. Returns (nil, nil) when the
// file lacks the key columns and should be skipped.
func (l *Loader) loadFile(path string) ([]*models.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileUnreadable, path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	// GetRows yields every cell as formatted text. Never coerce to numbers
	// here: long card identifiers would collapse into scientific notation.
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileUnreadable, path, err)
	}
	if len(rows) == 0 {
		l.logger.WithField("file", filepath.Base(path)).Warn("Skipping file with empty sheet")
		return nil, nil
	}

	header := buildHeaderIndex(rows[0])
	cardIdx, cardOK := header.lookup(l.config.CardColumn)
	opIdx, opOK := header.lookup(l.config.OperationColumn)
	if !cardOK || !opOK {
		l.logger.WithFields(logger.Fields{
			"file":             filepath.Base(path),
			"card_column":      l.config.CardColumn,
			"operation_column": l.config.OperationColumn,
		}).Warn("Skipping file with missing required columns")
		return nil, nil
	}
	amountIdx, amountOK := header.lookup(l.config.AmountColumn)
	refundIdx, refundOK := header.lookup(l.config.MustRefundColumn)

	sourceRef := models.BuildSourceRef(filepath.Base(path))

	records := make([]*models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		raw := ""
		if amountOK {
			raw = cellAt(row, amountIdx)
		}
		refund := models.MustRefundYes
		if refundOK {
			refund = models.ParseMustRefund(cellAt(row, refundIdx))
		}
		records = append(records, &models.Record{
			Card:       strings.TrimSpace(cellAt(row, cardIdx)),
			Operation:  strings.TrimSpace(cellAt(row, opIdx)),
			Amount:     models.ParseAmount(raw),
			RawAmount:  raw,
			MustRefund: refund,
			SourceRef:  sourceRef,
		})
	}

	return trimTrailingBlank(records), nil
}

// trimTrailingBlank drops filler rows at the end of a table where both key
// fields are blank. Blank rows in the middle stay and are caught by the
// quality gate instead.
func trimTrailingBlank(records []*models.Record) []*models.Record {
	end := len(records)
	for end > 0 && !records[end-1].HasKey() {
		end--
	}
	return records[:end]
}

// headerIndex maps normalized column names to their position.
type headerIndex map[string]int

func buildHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

func (h headerIndex) lookup(name string) (int, bool) {
	i, ok := h[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
