package parsers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// ReportLoader reads ERP report entries from a CSV export
type ReportLoader struct {
	*BaseParser
	mapping *ReportMapping
	account string
}

// NewReportLoader creates a loader for the given column mapping
func NewReportLoader(mapping *ReportMapping, opts ...LoaderOption) (*ReportLoader, error) {
	if mapping == nil {
		mapping = DefaultReportMapping()
	}
	if mapping.Layout == "" {
		mapping.Layout = LayoutNature
	}

	if err := mapping.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_mapping", *mapping, err)
	}

	o := buildOptions("report_loader", opts)
	if o.account != "" && mapping.Account == "" {
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "account", o.account,
			fmt.Errorf("an account filter needs a mapped account column"))
	}

	delimiter, _ := ParseDelimiter(mapping.Delimiter)

	return &ReportLoader{
		BaseParser: newBaseParser(delimiter, o),
		mapping:    mapping,
		account:    o.account,
	}, nil
}

// Load parses every report entry of filePath in file order. Rows outside the
// account filter and, for the nature layout, rows that are neither credit nor
// debit are dropped.
func (rl *ReportLoader) Load(ctx context.Context, filePath string) ([]*models.Record, *ParseStats, error) {
	stats := NewParseStats(filePath, rl.maxErrors)

	reader, err := rl.OpenFile(filePath, stats)
	if err != nil {
		return nil, stats, err
	}

	parseCtx := NewParseContext(ctx, filePath)
	if err := rl.ReadHeaders(reader, parseCtx, rl.mapping.RequiredColumns()); err != nil {
		return nil, stats, err
	}

	var records []*models.Record
	for {
		row, rowErr, err := rl.ReadRecord(reader, parseCtx)
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

		if rl.account != "" && parseCtx.Field(row, rl.mapping.Account) != rl.account {
			stats.RowsFiltered++
			continue
		}

		record, ok := rl.parseRow(row, parseCtx, stats)
		if !ok {
			continue
		}

		records = append(records, record)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	rl.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"layout":    rl.mapping.Layout,
		"account":   rl.account,
		"loaded":    stats.RecordsValid,
		"skipped":   stats.RowsSkipped,
		"filtered":  stats.RowsFiltered,
		"undated":   stats.UndatedRecords,
	}).Info("Loaded report")

	return records, stats, nil
}

func (rl *ReportLoader) parseRow(row []string, parseCtx *ParseContext, stats *ParseStats) (*models.Record, bool) {
	var (
		amount decimal.Decimal
		rowErr *errors.RowError
	)

	if rl.mapping.Layout == LayoutSplit {
		amount, rowErr = rl.splitAmount(row, parseCtx)
	} else {
		var filtered bool
		amount, filtered, rowErr = rl.natureAmount(row, parseCtx)
		if filtered {
			stats.RowsFiltered++
			stats.Errors.Add(rowErr)
			return nil, false
		}
	}
	if rowErr != nil {
		stats.RowsSkipped++
		stats.Errors.Add(rowErr.WithLineContent(rawLine(row, stats.Delimiter)))
		return nil, false
	}

	date, dateErr := parseDate(parseCtx, rl.mapping.Date, parseCtx.Field(row, rl.mapping.Date))
	if dateErr != nil {
		stats.UndatedRecords++
		stats.Errors.Add(dateErr)
	}

	record := models.NewRecord(date, amount, parseCtx.Field(row, rl.mapping.Description))
	record.Account = parseCtx.Field(row, rl.mapping.Account)
	record.Line = parseCtx.LineNumber
	return record, true
}

// natureAmount signs the absolute amount by the nature cell. A row whose
// nature is neither credit nor debit is reported as filtered.
func (rl *ReportLoader) natureAmount(row []string, parseCtx *ParseContext) (decimal.Decimal, bool, *errors.RowError) {
	natureStr := parseCtx.Field(row, rl.mapping.Nature)
	nature := ParseNature(natureStr)
	if nature == NatureUnknown {
		return decimal.Zero, true, errors.InvalidNatureError(parseCtx.File, parseCtx.LineNumber, rl.mapping.Nature, natureStr)
	}

	amountStr := parseCtx.Field(row, rl.mapping.Amount)
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return decimal.Zero, false, errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, rl.mapping.Amount, amountStr)
	}

	if nature == NatureDebit {
		return amount.Abs().Neg(), false, nil
	}
	return amount.Abs(), false, nil
}

// splitAmount nets the credit and debit cells. An empty cell counts as zero
// but a row with both cells empty carries no amount and is skipped.
func (rl *ReportLoader) splitAmount(row []string, parseCtx *ParseContext) (decimal.Decimal, *errors.RowError) {
	creditStr := parseCtx.Field(row, rl.mapping.Credit)
	debitStr := parseCtx.Field(row, rl.mapping.Debit)

	if creditStr == "" && debitStr == "" {
		return decimal.Zero, errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, rl.mapping.Credit, "")
	}

	credit := decimal.Zero
	if creditStr != "" {
		c, err := models.ParseDecimalFromString(creditStr)
		if err != nil {
			return decimal.Zero, errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, rl.mapping.Credit, creditStr)
		}
		credit = c.Abs()
	}

	debit := decimal.Zero
	if debitStr != "" {
		d, err := models.ParseDecimalFromString(debitStr)
		if err != nil {
			return decimal.Zero, errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, rl.mapping.Debit, debitStr)
		}
		debit = d.Abs()
	}

	return credit.Sub(debit), nil
}

// String describes the loader configuration
func (rl *ReportLoader) String() string {
	return fmt.Sprintf("ReportLoader{layout=%s date=%s account=%q}", rl.mapping.Layout, rl.mapping.Date, rl.account)
}
