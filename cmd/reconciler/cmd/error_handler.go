package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"go.uber.org/multierr"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			if value := err.Context[key]; value != nil && value != "" {
				fmt.Fprintf(h.out, "  %s: %v\n", key, value)
			}
		}
	}

	// flag and profile problems are useless without their details
	if err.Cause != nil && (h.verbose || showsCause(err.Category)) {
		fmt.Fprintf(h.out, "\n%s\n", FormatValidationErrors(multierr.Errors(err.Cause)))
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	return err.GetExitCode()
}

func showsCause(category errors.ErrorCategory) bool {
	switch category {
	case errors.CategoryValidation, errors.CategoryConfiguration, errors.CategoryProfile:
		return true
	default:
		return false
	}
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	var pathErr *os.PathError
	if stderrors.As(err, &pathErr) {
		fmt.Fprint(h.out, FormatFileError(pathErr.Path, pathErr.Err))
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra flag and argument errors land here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")

	return 1
}

func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the statement and report files exist and are readable
• Use absolute paths if the tool runs from another directory
• Export the file again if it is empty`

	case errors.CategoryParse:
		return `Parse error help:
• Check the header row against the column flags or the profile
• Use --statement-delimiter / --report-delimiter if detection picks the wrong separator
• Files may be UTF-8 or Windows-1252 encoded`

	case errors.CategoryValidation:
		return `Validation error help:
• Provide both --statement and --report
• Amounts may be written as 1234.56, -1234.56 or R$ 1.234,56
• Dates may be written as DD/MM/YYYY or YYYY-MM-DD`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and RECONCILER_ environment variables
• Verify the config file syntax if using --config
• Use 'reconciler reconcile --help' to see all available options`

	case errors.CategoryProfile:
		return `Profile error help:
• Use 'reconciler profile list' to see saved and built-in profiles
• Use 'reconciler profile save NAME' with the column flags to create one
• Check --profiles-dir if profiles are kept elsewhere`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• The run was interrupted or could not complete
• Lower --max-candidates or --max-reverse-size for very dense days
• Run again with --verbose for details`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help
• Run again with --verbose for details`
	}
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}

// FormatValidationErrors formats a list of problems, one per line
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	if len(errs) == 1 {
		return fmt.Sprintf("Details: %v", errs[0])
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d problems:", len(errs)))

	for i, err := range errs {
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
		if i >= 9 && len(errs) > 10 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(errs)-10))
			break
		}
	}

	return strings.Join(lines, "\n")
}

// FormatFileError formats file-related errors, listing similarly named files
// when the file does not exist
func FormatFileError(filePath string, err error) string {
	baseName := filepath.Base(filePath)
	dir := filepath.Dir(filePath)

	var message strings.Builder
	message.WriteString(fmt.Sprintf("Error with file '%s':\n", baseName))
	message.WriteString(fmt.Sprintf("  Path: %s\n", filePath))
	message.WriteString(fmt.Sprintf("  Error: %v\n", err))

	if os.IsNotExist(err) {
		message.WriteString("  Suggestion: Check if the file exists in the specified location\n")

		prefix := strings.ToLower(baseName[:min(len(baseName), 3)])
		if entries, dirErr := os.ReadDir(dir); dirErr == nil && prefix != "" {
			var similar []string
			for _, entry := range entries {
				if !entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), prefix) {
					similar = append(similar, entry.Name())
				}
			}
			if len(similar) > 0 {
				message.WriteString("  Similar files found:\n")
				for _, name := range similar[:min(len(similar), 3)] {
					message.WriteString(fmt.Sprintf("    - %s\n", name))
				}
			}
		}
	} else if os.IsPermission(err) {
		message.WriteString("  Suggestion: Check file permissions - you may need read access\n")
	}

	return message.String()
}
