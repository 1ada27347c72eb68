package parsers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// StatementLoader reads bank statement lines from a CSV export
type StatementLoader struct {
	*BaseParser
	mapping *StatementMapping
}

// NewStatementLoader creates a loader for the given column mapping
func NewStatementLoader(mapping *StatementMapping, opts ...LoaderOption) (*StatementLoader, error) {
	if mapping == nil {
		mapping = DefaultStatementMapping()
	}

	if err := mapping.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statement_mapping", *mapping, err)
	}

	delimiter, _ := ParseDelimiter(mapping.Delimiter)
	o := buildOptions("statement_loader", opts)

	return &StatementLoader{
		BaseParser: newBaseParser(delimiter, o),
		mapping:    mapping,
	}, nil
}

// Load parses every statement line of filePath in file order
func (sl *StatementLoader) Load(ctx context.Context, filePath string) ([]*models.Record, *ParseStats, error) {
	stats := NewParseStats(filePath, sl.maxErrors)

	reader, err := sl.OpenFile(filePath, stats)
	if err != nil {
		return nil, stats, err
	}

	parseCtx := NewParseContext(ctx, filePath)
	if err := sl.ReadHeaders(reader, parseCtx, sl.mapping.RequiredColumns()); err != nil {
		return nil, stats, err
	}

	var records []*models.Record
	for {
		row, rowErr, err := sl.ReadRecord(reader, parseCtx)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return records, stats, err
		}

		stats.RecordsParsed++
		if rowErr != nil {
			stats.RowsSkipped++
			stats.Errors.Add(rowErr)
			continue
		}

		record, ok := sl.parseRow(row, parseCtx, stats)
		if !ok {
			continue
		}

		records = append(records, record)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	sl.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"loaded":    stats.RecordsValid,
		"skipped":   stats.RowsSkipped,
		"undated":   stats.UndatedRecords,
	}).Info("Loaded statement")

	return records, stats, nil
}

func (sl *StatementLoader) parseRow(row []string, parseCtx *ParseContext, stats *ParseStats) (*models.Record, bool) {
	amountStr := parseCtx.Field(row, sl.mapping.Amount)
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		stats.RowsSkipped++
		stats.Errors.Add(errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, sl.mapping.Amount, amountStr).
			WithLineContent(rawLine(row, stats.Delimiter)))
		return nil, false
	}

	date, dateErr := parseDate(parseCtx, sl.mapping.Date, parseCtx.Field(row, sl.mapping.Date))
	if dateErr != nil {
		stats.UndatedRecords++
		stats.Errors.Add(dateErr)
	}

	record := models.NewRecord(date, amount, parseCtx.Field(row, sl.mapping.Description))
	record.Line = parseCtx.LineNumber
	return record, true
}

// String describes the loader configuration
func (sl *StatementLoader) String() string {
	return fmt.Sprintf("StatementLoader{date=%s amount=%s description=%s}",
		sl.mapping.Date, sl.mapping.Amount, sl.mapping.Description)
}
