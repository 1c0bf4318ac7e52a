package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryDuplicate      ErrorCategory = "duplicate"
	CategoryConciliation   ErrorCategory = "conciliation"
	CategoryExport         ErrorCategory = "export"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFileUnreadable ErrorCode = "file_unreadable"
	CodeDirectoryError ErrorCode = "directory_error"
	CodeNoInputFiles   ErrorCode = "no_input_files"

	// Parse errors
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"
	CodeEmptySheet    ErrorCode = "empty_sheet"

	// Validation errors
	CodeEmptyPile     ErrorCode = "empty_pile"
	CodeQualityFailed ErrorCode = "quality_check_failed"
	CodeMissingField  ErrorCode = "missing_field"

	// Duplicate errors
	CodeDuplicateFiles  ErrorCode = "duplicate_files"
	CodeSuspiciousFiles ErrorCode = "suspicious_files"
	CodeKeyOverlap      ErrorCode = "key_overlap"
	CodePileCollision   ErrorCode = "pile_collision"

	// Conciliation errors
	CodeOrphanedCredits ErrorCode = "orphaned_credits"
	CodeProcessingError ErrorCode = "processing_error"

	// Export errors
	CodeWorkbookLocked ErrorCode = "workbook_locked"
	CodeWriteFailed    ErrorCode = "write_failed"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ConciliationError is the base error type for all application errors
type ConciliationError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ConciliationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ConciliationError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ConciliationError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryDuplicate:
		return 5
	case CategoryConciliation, CategoryInternal:
		return 6
	case CategoryExport:
		return 7
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ConciliationError) WithContext(key string, value interface{}) *ConciliationError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ConciliationError) WithSuggestion(suggestion string) *ConciliationError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ConciliationError
func New(category ErrorCategory, code ErrorCode, message string) *ConciliationError {
	return &ConciliationError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ConciliationError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ConciliationError {
	if err == nil {
		return nil
	}

	return &ConciliationError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFileUnreadable:
		message = fmt.Sprintf("cannot read spreadsheet file: %s", path)
		suggestion = "verify the file is a valid .xlsx workbook and is not corrupted"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	case CodeNoInputFiles:
		message = fmt.Sprintf("no matching spreadsheet files found in: %s", path)
		suggestion = "check the directory and the filename keywords for each pile"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, column string, err error) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the sheet has all required columns with correct headers"
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in file %s, column '%s'", file, column)
		suggestion = "correct the data format or remove the invalid entry"
	case CodeEmptySheet:
		message = fmt.Sprintf("file %s has no data rows", file)
		suggestion = "check that the first sheet holds the note table"
	default:
		message = fmt.Sprintf("parse error in file %s", file)
		suggestion = "check the file format and data integrity"
	}

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("column", column)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, subject string, detail string) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeEmptyPile:
		message = fmt.Sprintf("the %s pile is empty", subject)
		suggestion = "add at least one matching spreadsheet for this side, or check the filename keyword"
	case CodeQualityFailed:
		message = fmt.Sprintf("data quality checks failed for %s: %s", subject, detail)
		suggestion = "fix the reported rows in the source spreadsheets and rerun"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty: %s", subject, detail)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("validation error for %s: %s", subject, detail)
		suggestion = "check the reported values and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("subject", subject)
}

// DuplicateError creates a duplicate-detection error
func DuplicateError(code ErrorCode, fileA, fileB string, detail string) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeDuplicateFiles:
		message = fmt.Sprintf("DUPLICATE FILES: '%s' and '%s' hold identical data", fileA, fileB)
		suggestion = "remove one of the two files; the same export was loaded twice under different names"
	case CodeSuspiciousFiles:
		message = fmt.Sprintf("SUSPICIOUS FILES: '%s' and '%s' share every key but amounts differ", fileA, fileB)
		suggestion = "review both files; one may be a corrected re-export that should replace the other"
	case CodeKeyOverlap:
		message = fmt.Sprintf("key overlap between '%s' and '%s': %s", fileA, fileB, detail)
		suggestion = "confirm both files are intentional before rerunning"
	case CodePileCollision:
		message = fmt.Sprintf("debt and credit piles look like the same data: %s", detail)
		suggestion = "check that the debt and credit directories do not hold the same export"
	default:
		message = fmt.Sprintf("duplicate data detected between '%s' and '%s'", fileA, fileB)
		suggestion = "review the input files for accidental re-submission"
	}

	return New(CategoryDuplicate, code, message).
		WithSuggestion(suggestion).
		WithContext("file_a", fileA).
		WithContext("file_b", fileB)
}

// ConciliationFailure creates a reconciliation-stage error
func ConciliationFailure(code ErrorCode, operation string, err error) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeOrphanedCredits:
		message = fmt.Sprintf("orphaned credit notes found during %s", operation)
		suggestion = "every refund must trace back to a charge; check the credit files for stray rows"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check the input data and try again"
	default:
		message = fmt.Sprintf("conciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryConciliation, code, message)
	} else {
		result = New(CategoryConciliation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ExportError creates a report-export error
func ExportError(code ErrorCode, path string, err error) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeWorkbookLocked:
		message = fmt.Sprintf("cannot write report, the workbook appears to be open: %s", path)
		suggestion = "close the file in your spreadsheet program and retry"
	case CodeWriteFailed:
		message = fmt.Sprintf("failed to write report: %s", path)
		suggestion = "check disk space and write permissions for the output directory"
	default:
		message = fmt.Sprintf("export error: %s", path)
		suggestion = "check the output path and try again"
	}

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryExport, code, message)
	} else {
		result = New(CategoryExport, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("output_path", path)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ConciliationError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ConciliationError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	suggestion := "this is likely a bug - please report it with the error details"

	var result *ConciliationError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ConciliationError  `json:"errors"`
	SampleErrors []*ConciliationError  `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ConciliationError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ConciliationError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsConciliationError checks if an error is a ConciliationError
func IsConciliationError(err error) bool {
	_, ok := err.(*ConciliationError)
	return ok
}

// AsConciliationError extracts a ConciliationError from an error chain
func AsConciliationError(err error) (*ConciliationError, bool) {
	var conciliationErr *ConciliationError
	if errors.As(err, &conciliationErr) {
		return conciliationErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ConciliationError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ConciliationError {
	if err == nil {
		return nil
	}

	if conciliationErr, ok := AsConciliationError(err); ok {
		return conciliationErr
	}

	return Wrap(err, category, code, message)
}
