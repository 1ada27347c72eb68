package fixtures

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reconciler"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestGenerate_Expectation(t *testing.T) {
	scenario, err := Generate(DefaultConfig())
	require.NoError(t, err)

	expected := scenario.Expected
	assert.Equal(t, 7, expected.Days)
	assert.Equal(t, 21, expected.ExactPairs)
	assert.Equal(t, 7, expected.SplitGroups)
	assert.Equal(t, 7, expected.ReverseGroups)
	assert.Equal(t, 7, expected.BalanceLines)
	assert.Equal(t, 3, expected.Orphans, "orphans on days 1, 4 and 7")
	assert.Equal(t, []string{"01/03/2024", "04/03/2024", "07/03/2024"}, expected.UnbalancedDays)
	assert.Equal(t, len(scenario.Statements), expected.StatementLines)
	assert.Equal(t, len(scenario.Reports), expected.ReportEntries)
	assert.Len(t, scenario.Days(), 7)
}

func TestGenerate_Deterministic(t *testing.T) {
	first, err := Generate(DefaultConfig())
	require.NoError(t, err)
	second, err := Generate(DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, len(first.Statements), len(second.Statements))
	for i := range first.Statements {
		assert.True(t, first.Statements[i].Amount.Equal(second.Statements[i].Amount), "statement %d", i)
		assert.Equal(t, first.Statements[i].Description, second.Statements[i].Description)
	}

	config := DefaultConfig()
	config.Seed = 2
	other, err := Generate(config)
	require.NoError(t, err)
	assert.NotEqual(t, first.Statements[0].Amount.String()+first.Statements[1].Amount.String(),
		other.Statements[0].Amount.String()+other.Statements[1].Amount.String())
}

func TestGenerate_DayTotals(t *testing.T) {
	scenario, err := Generate(DefaultConfig())
	require.NoError(t, err)

	totals := make(map[string]decimal.Decimal)
	for _, r := range scenario.Statements {
		if r.Description == balanceDescription {
			continue
		}
		day := models.FormatDisplayDate(r.Date)
		totals[day] = totals[day].Add(r.Amount)
	}
	for _, r := range scenario.Reports {
		day := models.FormatDisplayDate(r.Date)
		totals[day] = totals[day].Sub(r.Amount)
	}

	var unbalanced []string
	for _, day := range scenario.Days() {
		if !totals[day].IsZero() {
			unbalanced = append(unbalanced, day)
		}
	}
	assert.Equal(t, scenario.Expected.UnbalancedDays, unbalanced)
}

func TestConfig_Validate(t *testing.T) {
	config := &Config{Days: 0, ExactPerDay: -1, OrphanEvery: -2, Layout: "ledger"}
	err := config.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)

	_, err = Generate(config)
	assert.Error(t, err)

	assert.NoError(t, DefaultConfig().Validate())
}

func TestScenario_WriteCSV(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	scenario := &Scenario{
		Statements: []*models.Record{
			models.NewRecord(day, decimal.RequireFromString("1234.5"), "TED recebida"),
			models.NewRecord(day, decimal.RequireFromString("-12"), "Tarifa"),
		},
		Reports: []*models.Record{
			models.NewRecord(day, decimal.RequireFromString("1234.5"), "Cliente 001"),
			models.NewRecord(day, decimal.RequireFromString("-12"), "Banco"),
		},
		Layout: parsers.LayoutNature,
	}

	var statement bytes.Buffer
	require.NoError(t, scenario.WriteStatementCSV(&statement))
	assert.Equal(t, "data;valor;historico\n01/03/2024;1234,50;TED recebida\n01/03/2024;-12,00;Tarifa\n", statement.String())

	var report bytes.Buffer
	require.NoError(t, scenario.WriteReportCSV(&report))
	assert.Equal(t, "data;historico;valor;natureza\n01/03/2024;Cliente 001;1234,50;C\n01/03/2024;Banco;12,00;D\n", report.String())

	scenario.Layout = parsers.LayoutSplit
	report.Reset()
	require.NoError(t, scenario.WriteReportCSV(&report))
	assert.Equal(t, "data;historico;credito;debito\n01/03/2024;Cliente 001;1234,50;\n01/03/2024;Banco;;12,00\n", report.String())
}

func TestScenario_Reconcile(t *testing.T) {
	for _, layout := range []parsers.ReportLayout{parsers.LayoutNature, parsers.LayoutSplit} {
		t.Run(string(layout), func(t *testing.T) {
			config := DefaultConfig()
			config.Layout = layout
			scenario, err := Generate(config)
			require.NoError(t, err)

			statementPath, reportPath, err := scenario.WriteFiles(t.TempDir())
			require.NoError(t, err)

			serviceConfig := reconciler.DefaultConfig()
			serviceConfig.StatementMapping = &parsers.StatementMapping{Date: "data", Amount: "valor", Description: "historico"}
			serviceConfig.ReportMapping = &parsers.ReportMapping{
				Layout:      layout,
				Date:        "data",
				Description: "historico",
				Amount:      "valor",
				Nature:      "natureza",
				Credit:      "credito",
				Debit:       "debito",
			}
			serviceConfig.Parallelism = 4

			service, err := reconciler.NewReconciliationService(serviceConfig)
			require.NoError(t, err)

			result, err := service.ProcessReconciliation(context.Background(), &reconciler.ReconciliationRequest{
				StatementFile: statementPath,
				ReportFile:    reportPath,
			})
			require.NoError(t, err)

			assert.Equal(t, scenario.Expected.StatementLines, result.StatementStats.RecordsValid)
			assert.Equal(t, scenario.Expected.ReportEntries, result.ReportStats.RecordsValid)
			assert.Len(t, result.Days, scenario.Expected.Days)

			var unbalanced []string
			for _, day := range result.Summary.UnbalancedDays {
				unbalanced = append(unbalanced, models.FormatDisplayDate(day))
			}
			assert.Equal(t, scenario.Expected.UnbalancedDays, unbalanced)

			assert.Positive(t, result.EngineStats.CombinationGroups)
			assert.Positive(t, result.EngineStats.ReverseGroups)
			assert.Greater(t, result.Summary.ReconciliationRate, 80.0)

			for _, row := range result.Rows {
				if row.Statement != nil && strings.Contains(row.Statement.Description, balanceDescription) {
					assert.Equal(t, models.MatchUnreconciled, row.Status)
				}
			}
		})
	}
}
