package errors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ParseContext locates a problem inside a statement or report file
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a parse problem tied to one row of an input file.
// Recoverable row errors mean the row was skipped or kept without the
// offending field; the rest of the file is still loaded.
type RowError struct {
	*ReconcilerError
	Location    *ParseContext `json:"location"`
	Recoverable bool          `json:"recoverable"`
	LineContent string        `json:"line_content,omitempty"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with the location appended
func (e *RowError) Error() string {
	parts := []string{e.ReconcilerError.Error()}

	if e.Location != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
		if e.Location.Line > 0 {
			location += fmt.Sprintf(":%d", e.Location.Line)
		}
		if e.Location.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Location.Column)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// GetDetailedError returns a multi-line description for the console
func (e *RowError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if e.Location != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Location.File))
		if e.Location.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Location.Line))
		}
		if e.Location.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Location.Column))
		}
		if e.Location.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Location.Value))
		}
		if e.Location.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Location.Expected))
		}
	}

	if e.LineContent != "" {
		lines = append(lines, fmt.Sprintf("  → Content: %s", e.LineContent))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewRowError creates a recoverable row error
func NewRowError(code ErrorCode, location *ParseContext, message string, cause error) *RowError {
	base := newOrWrap(cause, CategoryParse, code, message)

	if location != nil {
		base.WithContext("file", location.File).
			WithContext("line", location.Line).
			WithContext("column", location.Column).
			WithContext("value", location.Value)
	}

	return &RowError{
		ReconcilerError: base,
		Location:        location,
		Recoverable:     true,
	}
}

// WithLineContent adds the raw row to the error
func (e *RowError) WithLineContent(content string) *RowError {
	e.LineContent = content
	return e
}

// WithExamples adds example values to help fix the error
func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the RowError
func (e *RowError) WithSuggestion(suggestion string) *RowError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// InvalidAmountError reports an amount cell that could not be parsed.
// The row is skipped.
func InvalidAmountError(file string, line int, column string, value string) *RowError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: "signed decimal amount",
	}

	return NewRowError(CodeMalformedRecord, location, "invalid amount, row skipped", nil).
		WithExamples("1234.56", "-1234.56", "R$ 1.234,56", "(1.234,56)").
		WithSuggestion("fix the amount in the source export")
}

// InvalidDateError reports a date cell that could not be parsed.
// The row is kept without a date and can only end as a residue.
func InvalidDateError(file string, line int, column string, value string) *RowError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: "calendar date",
	}

	return NewRowError(CodeInvalidDate, location, "invalid date, row kept as unreconciled", nil).
		WithExamples("15/01/2024", "2024-01-15", "15-Jan-2024").
		WithSuggestion("use DD/MM/YYYY or YYYY-MM-DD")
}

// MissingColumnError reports mapped columns absent from the header
func MissingColumnError(file string, expectedColumns []string, actualColumns []string) *RowError {
	missing := findMissingColumns(expectedColumns, actualColumns)

	location := &ParseContext{
		File:     file,
		Line:     1,
		Expected: fmt.Sprintf("columns: %s", strings.Join(expectedColumns, ", ")),
	}

	err := NewRowError(CodeMissingColumn, location,
		fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
		WithSuggestion("check the column mapping flags or the selected profile")
	err.Recoverable = false
	return err
}

// InvalidNatureError reports a nature cell that is neither credit nor debit.
// The row is dropped by the nature filter.
func InvalidNatureError(file string, line int, column string, value string) *RowError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Value:    value,
		Expected: "credit or debit marker",
	}

	return NewRowError(CodeMalformedRecord, location, "unknown entry nature, row dropped", nil).
		WithExamples("C", "D", "CREDITO", "DEBITO", "+", "-")
}

// EncodingError reports a file that is neither UTF-8 nor Windows-1252
func EncodingError(file string, cause error) *RowError {
	err := NewRowError(CodeEncodingError, &ParseContext{File: file}, "file encoding error", cause).
		WithSuggestion("save the file as UTF-8")
	err.Recoverable = false
	return err
}

// RowErrorCollector gathers row errors while a file is loaded
type RowErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewRowErrorCollector creates a collector keeping at most maxErrors entries.
// A non-positive maxErrors keeps everything.
func NewRowErrorCollector(maxErrors int) *RowErrorCollector {
	return &RowErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether loading may continue
func (c *RowErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}

	if c.maxErrors <= 0 || len(c.errors) < c.maxErrors {
		c.errors = append(c.errors, err)
	}

	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *RowErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// GetErrors returns all collected errors
func (c *RowErrorCollector) GetErrors() []*RowError {
	return c.errors
}

// GetReconcilerErrors converts all errors to the base ReconcilerError type
func (c *RowErrorCollector) GetReconcilerErrors() []*ReconcilerError {
	result := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		result[i] = err.ReconcilerError
	}
	return result
}

// GetSummary returns an error summary for all collected errors
func (c *RowErrorCollector) GetSummary() *ErrorSummary {
	return NewErrorSummary(c.GetReconcilerErrors())
}

func findMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}

	return missing
}

// FormatRowErrorsForUser formats row errors grouped by file
func FormatRowErrorsForUser(errs []*RowError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}

	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs)), ""}

	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Location != nil {
			file = filepath.Base(err.Location.File)
		}
		byFile[file] = append(byFile[file], err)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	const maxDetailed = 3
	for _, file := range files {
		fileErrors := byFile[file]
		lines = append(lines, fmt.Sprintf("File: %s (%d errors)", file, len(fileErrors)))

		for i, err := range fileErrors {
			if i == maxDetailed {
				lines = append(lines, "", fmt.Sprintf("... and %d more errors in this file", len(fileErrors)-maxDetailed))
				break
			}
			lines = append(lines, "", err.GetDetailedError())
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
