// Package reporter renders reconciliation results for people and for tools.
//
// Supported output formats:
//   - Console: summary, result rows and day buckets as aligned tables
//   - JSON: the full result for programmatic consumption
//   - CSV: either the result rows or the day buckets, spreadsheet-ready
//
// Dates are displayed as DD/MM/YYYY and amounts as R$ 1234,56. CSV output
// uses a semicolon and a decimal comma by default so that it opens cleanly
// in Brazilian spreadsheet software.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reconciler"

	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// CSVContent selects what a CSV report contains
type CSVContent string

const (
	CSVRows CSVContent = "rows"
	CSVDays CSVContent = "days"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Console detail options
	IncludeMatchedRows bool `json:"include_matched_rows"`
	IncludeDays        bool `json:"include_days"`
	IncludeParseErrors bool `json:"include_parse_errors"`
	// MaxRows caps the rows printed to the console; zero prints all
	MaxRows int `json:"max_rows"`
	// UseColors colors statuses when the writer is a terminal
	UseColors bool `json:"use_colors"`

	// CSV options
	CSVContent   CSVContent `json:"csv_content"`
	CSVDelimiter rune       `json:"csv_delimiter"`
	CSVHeaders   bool       `json:"csv_headers"`
	CSVBOM       bool       `json:"csv_bom"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeMatchedRows: true,
		IncludeDays:        true,
		IncludeParseErrors: true,
		UseColors:          true,
		CSVContent:         CSVRows,
		CSVDelimiter:       ';',
		CSVHeaders:         true,
		CSVBOM:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max rows cannot be negative, got %d", c.MaxRows)
	}
	if c.CSVContent != CSVRows && c.CSVContent != CSVDays {
		return fmt.Errorf("invalid CSV content: %s (expected rows or days)", c.CSVContent)
	}
	if c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' || c.CSVDelimiter == 0 {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the result to writer in the configured format
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		if rg.config.CSVContent == CSVDays {
			return rg.WriteDaysCSV(result, writer)
		}
		return rg.WriteRowsCSV(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	colors := rg.config.UseColors && isTerminal(writer)

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", result.StartedAt.Format(time.RFC3339))
	if result.StatementFile != "" {
		fmt.Fprintf(writer, "Statement: %s\n", result.StatementFile)
		fmt.Fprintf(writer, "Report:    %s\n", result.ReportFile)
	}
	fmt.Fprintf(writer, "Duration:  %v\n\n", result.Duration.Round(time.Millisecond))

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== RESULT ROWS ===\n")
	if err := rg.printRows(result.Rows, writer, colors); err != nil {
		return err
	}
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeDays && len(result.Days) > 0 {
		fmt.Fprintf(writer, "=== DAILY BALANCE ===\n")
		if err := rg.printDays(result.Days, writer, colors); err != nil {
			return err
		}
		fmt.Fprintf(writer, "\n")
	}

	if result.EngineStats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printEngineStats(result.EngineStats, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeParseErrors {
		for _, stats := range []*parsers.ParseStats{result.StatementStats, result.ReportStats} {
			if stats != nil && stats.HasErrors() {
				fmt.Fprintf(writer, "=== INPUT ISSUES: %s ===\n", stats.File)
				fmt.Fprintf(writer, "%s\n", stats)
				for _, msg := range stats.GetSampleErrors(5) {
					fmt.Fprintf(writer, "  - %s\n", msg)
				}
				fmt.Fprintf(writer, "\n")
			}
		}
	}

	return nil
}

func (rg *ReportGenerator) printSummary(summary *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Rows:\n")
	fmt.Fprintf(writer, "  Total:         %d\n", summary.TotalRows)
	fmt.Fprintf(writer, "  Matched:       %d (%.1f%%)\n", summary.MatchedRows, summary.ReconciliationRate)
	fmt.Fprintf(writer, "    Exact:       %d\n", summary.ExactRows)
	fmt.Fprintf(writer, "    Sum:         %d\n", summary.SumRows)
	fmt.Fprintf(writer, "  Unreconciled:  %d\n", summary.UnreconciledRows)

	fmt.Fprintf(writer, "Days:\n")
	fmt.Fprintf(writer, "  Total:         %d\n", summary.TotalDays)
	fmt.Fprintf(writer, "  Balanced:      %d\n", summary.BalancedDays)
	fmt.Fprintf(writer, "  Unbalanced:    %d\n", len(summary.UnbalancedDays))
	if len(summary.UnbalancedDays) > 0 {
		days := make([]string, len(summary.UnbalancedDays))
		for i, d := range summary.UnbalancedDays {
			days[i] = models.FormatDisplayDate(d)
		}
		fmt.Fprintf(writer, "    %s\n", strings.Join(days, ", "))
	}

	fmt.Fprintf(writer, "Totals:\n")
	fmt.Fprintf(writer, "  Statement:     %s\n", models.FormatCurrency(summary.StatementTotal))
	fmt.Fprintf(writer, "  Report:        %s\n", models.FormatCurrency(summary.ReportTotal))
	fmt.Fprintf(writer, "  Difference:    %s\n", models.FormatCurrency(summary.Difference))
}

func (rg *ReportGenerator) printRows(rows []*models.ResultRow, writer io.Writer, colors bool) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATEMENT DATE\tSTATEMENT AMOUNT\tSTATEMENT DESCRIPTION\tREPORT DATE\tREPORT AMOUNT\tREPORT DESCRIPTION\tSTATUS")

	printed := 0
	for _, row := range rows {
		if !rg.config.IncludeMatchedRows && row.Status.IsMatched() {
			continue
		}
		if rg.config.MaxRows > 0 && printed == rg.config.MaxRows {
			fmt.Fprintf(tw, "... %d more rows not shown\n", countRemaining(rows, printed, rg.config.IncludeMatchedRows))
			break
		}

		cells := append(recordCells(row.Statement, models.FormatCurrency, 40),
			recordCells(row.Report, models.FormatCurrency, 40)...)
		cells = append(cells, paintStatus(row.Status.String(), colors))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
		printed++
	}

	return tw.Flush()
}

func countRemaining(rows []*models.ResultRow, printed int, includeMatched bool) int {
	total := 0
	for _, row := range rows {
		if includeMatched || !row.Status.IsMatched() {
			total++
		}
	}
	return total - printed
}

func (rg *ReportGenerator) printDays(days []*models.DayBucket, writer io.Writer, colors bool) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tSTATEMENT\tREPORT\tDIFFERENCE\tSTATUS\t")

	for _, day := range days {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			models.FormatDisplayDate(day.Date),
			models.FormatCurrency(day.StatementTotal),
			models.FormatCurrency(day.ReportTotal),
			models.FormatCurrency(day.Difference()),
			paintStatus(string(day.Status), colors),
		)
	}

	return tw.Flush()
}

func (rg *ReportGenerator) printEngineStats(stats *reconciler.EngineStats, writer io.Writer) {
	fmt.Fprintf(writer, "Statement records:   %d (%d undated)\n", stats.StatementRecords, stats.UndatedStatements)
	fmt.Fprintf(writer, "Report records:      %d (%d undated)\n", stats.ReportRecords, stats.UndatedReports)
	fmt.Fprintf(writer, "Days:                %d\n", stats.Days)
	fmt.Fprintf(writer, "Exact matches:       %d\n", stats.ExactMatches)
	fmt.Fprintf(writer, "Combination groups:  %d\n", stats.CombinationGroups)
	fmt.Fprintf(writer, "Reverse groups:      %d\n", stats.ReverseGroups)
	if stats.BudgetExhausted > 0 {
		fmt.Fprintf(writer, "Search budget hit:   %d\n", stats.BudgetExhausted)
	}
	fmt.Fprintf(writer, "Matching time:       %v\n", stats.Duration.Round(time.Millisecond))
}

// recordCells renders date, amount and description of a record. A nil record
// yields empty cells.
func recordCells(r *models.Record, amount func(decimal.Decimal) string, maxDescription int) []string {
	if r == nil {
		return []string{"", "", ""}
	}
	description := r.Description
	if maxDescription > 0 && len([]rune(description)) > maxDescription {
		description = string([]rune(description)[:maxDescription-3]) + "..."
	}
	return []string{models.FormatDisplayDate(r.Date), amount(r.Amount), description}
}

// generateJSONReport writes the full result as indented JSON
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// WriteRowsCSV writes one line per result row
func (rg *ReportGenerator) WriteRowsCSV(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter, err := rg.newCSVWriter(writer)
	if err != nil {
		return err
	}

	if rg.config.CSVHeaders {
		headers := []string{
			"statement_date", "statement_amount", "statement_description",
			"report_date", "report_amount", "report_description",
			"status",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, row := range result.Rows {
		record := append(recordCells(row.Statement, rg.csvAmount, 0), recordCells(row.Report, rg.csvAmount, 0)...)
		record = append(record, row.Status.String())
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write result row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteDaysCSV writes one line per day bucket
func (rg *ReportGenerator) WriteDaysCSV(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter, err := rg.newCSVWriter(writer)
	if err != nil {
		return err
	}

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"date", "statement_total", "report_total", "difference", "status"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, day := range result.Days {
		record := []string{
			models.FormatDisplayDate(day.Date),
			rg.csvAmount(day.StatementTotal),
			rg.csvAmount(day.ReportTotal),
			rg.csvAmount(day.Difference()),
			string(day.Status),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write day bucket: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) newCSVWriter(writer io.Writer) (*csv.Writer, error) {
	if rg.config.CSVBOM {
		if _, err := io.WriteString(writer, "\ufeff"); err != nil {
			return nil, fmt.Errorf("failed to write byte order mark: %w", err)
		}
	}
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	return csvWriter, nil
}

// csvAmount uses a decimal comma unless the delimiter is already a comma
func (rg *ReportGenerator) csvAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if rg.config.CSVDelimiter == ',' {
		return s
	}
	return strings.Replace(s, ".", ",", 1)
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current report generator configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"
)

func paintStatus(status string, colors bool) string {
	if !colors {
		return status
	}
	switch status {
	case models.MatchExact.String(), string(models.DayBalanced):
		return ansiGreen + status + ansiReset
	case models.MatchSum.String():
		return ansiCyan + status + ansiReset
	case models.MatchUnreconciled.String(), string(models.DayUnbalanced):
		return ansiRed + status + ansiReset
	default:
		return status
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
