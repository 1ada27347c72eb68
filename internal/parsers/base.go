// Package parsers loads bank statements and ERP reports from CSV exports.
//
// Real-world exports vary a lot, so the loaders are forgiving:
//   - the delimiter is detected among , ; tab and | unless configured
//   - files that are not valid UTF-8 are decoded as Windows-1252
//   - amounts may use Brazilian (R$ 1.234,56) or plain (-1234.56) notation
//   - dates are tried against several day-first, ISO and US layouts
//
// A row with an unparseable amount is skipped. A row with an unparseable
// date is kept without a date and can only end up unreconciled. Both are
// recorded in ParseStats so the caller can report them.
//
// Example usage:
//
//	loader, err := NewStatementLoader(DefaultStatementMapping())
//	records, stats, err := loader.Load(ctx, "statement.csv")
//
//	reports, err := NewReportLoader(mapping, WithAccount("1.1.01"))
//	records, stats, err = reports.Load(ctx, "report.csv")
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"golang.org/x/text/encoding/charmap"
)

const (
	// EncodingUTF8 marks a file read as UTF-8
	EncodingUTF8 = "utf-8"
	// EncodingWindows1252 marks a file decoded from Windows-1252
	EncodingWindows1252 = "windows-1252"

	// DefaultMaxErrors caps the row errors kept per file
	DefaultMaxErrors = 100

	utf8BOM = "\ufeff"
)

// LoaderOption customizes a loader
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	account   string
	maxErrors int
	logger    logger.Logger
}

// WithAccount keeps only report rows whose account cell equals account
func WithAccount(account string) LoaderOption {
	return func(o *loaderOptions) {
		o.account = strings.TrimSpace(account)
	}
}

// WithMaxErrors caps the number of row errors kept in ParseStats
func WithMaxErrors(n int) LoaderOption {
	return func(o *loaderOptions) {
		o.maxErrors = n
	}
}

// WithLogger sets the logger used by the loader
func WithLogger(log logger.Logger) LoaderOption {
	return func(o *loaderOptions) {
		o.logger = log
	}
}

func buildOptions(component string, opts []LoaderOption) *loaderOptions {
	o := &loaderOptions{maxErrors: DefaultMaxErrors}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.GetGlobalLogger()
	}
	o.logger = o.logger.WithComponent(component)
	return o
}

// BaseParser holds the CSV plumbing shared by the statement and report loaders
type BaseParser struct {
	delimiter rune
	maxErrors int
	logger    logger.Logger
}

func newBaseParser(delimiter rune, opts *loaderOptions) *BaseParser {
	return &BaseParser{
		delimiter: delimiter,
		maxErrors: opts.maxErrors,
		logger:    opts.logger,
	}
}

// ParseStats describes what happened while loading one file
type ParseStats struct {
	File      string `json:"file"`
	Encoding  string `json:"encoding"`
	Delimiter string `json:"delimiter"`

	// TotalLines counts header and data lines read
	TotalLines int `json:"total_lines"`
	// RecordsParsed counts data rows seen
	RecordsParsed int `json:"records_parsed"`
	// RecordsValid counts records returned to the caller
	RecordsValid int `json:"records_valid"`
	// RowsSkipped counts rows dropped for a malformed amount or row
	RowsSkipped int `json:"rows_skipped"`
	// RowsFiltered counts rows dropped by the nature or account filter
	RowsFiltered int `json:"rows_filtered"`
	// UndatedRecords counts records kept without a date
	UndatedRecords int `json:"undated_records"`

	Errors *errors.RowErrorCollector `json:"-"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file string, maxErrors int) *ParseStats {
	return &ParseStats{
		File:   file,
		Errors: errors.NewRowErrorCollector(maxErrors),
	}
}

// HasErrors returns true if any row error was recorded
func (ps *ParseStats) HasErrors() bool {
	return ps.Errors != nil && ps.Errors.HasErrors()
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d rows (%d loaded, %d skipped, %d filtered, %d undated)",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.RowsSkipped, ps.RowsFiltered, ps.UndatedRecords)
}

// GetSampleErrors returns up to maxSamples error messages
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if !ps.HasErrors() {
		return nil
	}

	all := ps.Errors.GetErrors()
	limit := len(all)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, err := range all[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// ParseContext holds state while rows of one file are read
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:      file,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	return pc.ctx.Err() != nil
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup ignores case and surrounding whitespace.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, ok := pc.HeaderMap[normalizeHeader(name)]; ok {
		return index
	}
	return -1
}

// Field returns the trimmed cell for column name. Missing columns and short
// rows yield an empty string.
func (pc *ParseContext) Field(record []string, name string) string {
	if name == "" {
		return ""
	}
	index := pc.GetColumnIndex(name)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
}

// OpenFile reads a whole file, decodes it and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string, stats *ParseStats) (*csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	data, err := os.ReadFile(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
		}
	}

	text, encoding, err := decode(data)
	if err != nil {
		return nil, errors.EncodingError(filePath, err)
	}
	stats.Encoding = encoding

	if strings.TrimSpace(text) == "" {
		return nil, errors.FileError(errors.CodeFileEmpty, filePath, nil)
	}

	delimiter := bp.delimiter
	if delimiter == 0 {
		delimiter = DetectDelimiter(text)
	}
	stats.Delimiter = string(delimiter)

	bp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"encoding":  encoding,
		"delimiter": string(delimiter),
	}).Debug("Decoded CSV file")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return reader, nil
}

// decode returns the file as UTF-8 text, falling back to Windows-1252
func decode(data []byte) (string, string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), utf8BOM), EncodingUTF8, nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(decoded), EncodingWindows1252, nil
}

// DetectDelimiter picks the candidate that occurs most often outside quotes
// on the first non-empty line. Ties keep the detection order, and a line
// with no candidate at all yields a comma.
func DetectDelimiter(text string) rune {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	counts := make(map[rune]int, len(Delimiters))
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best := Delimiters[0]
	for _, d := range Delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// ReadHeaders reads the header row and checks that required columns exist
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required []string) error {
	headers, err := reader.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.FileError(errors.CodeFileEmpty, parseCtx.File, nil)
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err).
			WithSuggestion("check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	parseCtx.HeaderMap = make(map[string]int, len(headers))
	for i, h := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		key := normalizeHeader(h)
		if _, dup := parseCtx.HeaderMap[key]; !dup {
			parseCtx.HeaderMap[key] = i
		}
	}

	for _, column := range required {
		if parseCtx.GetColumnIndex(column) == -1 {
			bp.logger.WithFields(logger.Fields{
				"required":  required,
				"available": parseCtx.Headers,
			}).Error("Required columns are missing")
			return errors.MissingColumnError(parseCtx.File, required, parseCtx.Headers)
		}
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")
	return nil
}

// ReadRecord returns the next non-empty row. Malformed rows are reported
// through the returned RowError and do not stop the reader.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, *errors.RowError, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, nil, errors.ReconciliationError(errors.CodeCancelled, "load "+parseCtx.File, parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil, nil, io.EOF
			}

			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.Line
				rowErr := errors.NewRowError(errors.CodeMalformedRecord, &errors.ParseContext{
					File: parseCtx.File,
					Line: csvErr.Line,
				}, "malformed CSV row, row skipped", err)
				return nil, rowErr, nil
			}
			return nil, nil, errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, parseCtx.LineNumber+1, "", "", err)
		}

		line, _ := reader.FieldPos(0)
		parseCtx.LineNumber = line

		if isEmptyRecord(record) {
			continue
		}
		return record, nil, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// rawLine renders a row for error context
func rawLine(record []string, delimiter string) string {
	var b bytes.Buffer
	for i, field := range record {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(field)
	}
	return b.String()
}

// parseDate parses a date cell. An unparseable or empty cell yields the
// zero time and a row error; the record is still kept.
func parseDate(parseCtx *ParseContext, column, value string) (time.Time, *errors.RowError) {
	if value == "" {
		return time.Time{}, errors.InvalidDateError(parseCtx.File, parseCtx.LineNumber, column, value)
	}
	t, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, errors.InvalidDateError(parseCtx.File, parseCtx.LineNumber, column, value)
	}
	return t, nil
}
