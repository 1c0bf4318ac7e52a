package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"creditnote-conciliator/pkg/errors"
	"creditnote-conciliator/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// Log the error
	h.logger.WithError(err).Error("Command failed")

	// Handle ConciliationError with detailed information
	if conciliationErr, ok := errors.AsConciliationError(err); ok {
		return h.handleConciliationError(conciliationErr)
	}

	// Handle other error types
	return h.handleGenericError(err)
}

// handleConciliationError handles ConciliationError with detailed context
func (h *CLIErrorHandler) handleConciliationError(err *errors.ConciliationError) int {
	// Print the main error message
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	// Add context information if available
	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	// Add suggestion if available
	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	// Add category-specific help
	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-ConciliationError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	// Check for common system errors and provide better messages
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(os.Stderr, "Error: Insufficient disk space\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Generic error handling
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, run with --verbose\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the input directory exists and holds the note workbooks
• Verify the path is correct (use absolute paths if needed)
• Ensure you have read permissions on every workbook`

	case errors.CategoryParse:
		return `Parse error help:
• Open the flagged workbook and check its column headers
• Card and operation columns are required; amount and refund flag are optional
• Re-export the file from the accounting system if it looks corrupted`

	case errors.CategoryValidation:
		return `Validation error help:
• Fix the flagged rows in the source workbook (empty cards or operations)
• Quality errors always block the run; warnings do not
• Re-run after correcting the export`

	case errors.CategoryDuplicate:
		return `Duplicate file help:
• The same export was likely submitted twice under different names
• Remove or replace one of the flagged files
• If the files are genuinely distinct, their contents should differ`

	case errors.CategoryConciliation:
		return `Conciliation error help:
• Orphaned credit notes mean a refund has no traceable charge
• Check that every debt note export for the period is present
• Verify the files were assigned to the correct side by their filename`

	case errors.CategoryExport:
		return `Export error help:
• Close the report if it is open in a spreadsheet program
• Check write permissions and free space in the output directory
• Try a different output path with --output`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'conciliator run --help' to see all available options`

	default:
		return `For more help:
• Use 'conciliator --help' for general help
• Use 'conciliator run --help' for command-specific help
• Run with --verbose for detailed error information`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
