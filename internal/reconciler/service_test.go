package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const serviceStatement = "data;valor;historico\n" +
	"01/03/2024;1.000,00;SALDO ANTERIOR\n" +
	"01/03/2024;100,00;TED recebida\n" +
	"01/03/2024;250,00;Deposito\n" +
	"02/03/2024;-30,00;Tarifa\n" +
	"02/03/2024;-20,00;Tarifa\n" +
	"03/03/2024;xx;Quebrada\n"

const serviceReport = "data;historico;valor;natureza;conta\n" +
	"01/03/2024;Cliente A;100,00;C;1.1.01\n" +
	"01/03/2024;Cliente B;150,00;C;1.1.01\n" +
	"01/03/2024;Cliente C;100,00;C;1.1.01\n" +
	"02/03/2024;Tarifas;50,00;D;1.1.01\n" +
	"02/03/2024;Outra conta;999,00;C;2.1.01\n"

func serviceConfig() *Config {
	config := DefaultConfig()
	config.StatementMapping = &parsers.StatementMapping{Date: "data", Amount: "valor", Description: "historico"}
	config.ReportMapping = &parsers.ReportMapping{
		Layout:      parsers.LayoutNature,
		Date:        "data",
		Description: "historico",
		Amount:      "valor",
		Nature:      "natureza",
		Account:     "conta",
	}
	config.Account = "1.1.01"
	return config
}

func TestReconciliationService_ProcessReconciliation(t *testing.T) {
	dir := t.TempDir()
	request := &ReconciliationRequest{
		StatementFile: writeFile(t, dir, "extrato.csv", serviceStatement),
		ReportFile:    writeFile(t, dir, "relatorio.csv", serviceReport),
	}

	var calls atomic.Int32
	service, err := NewReconciliationService(serviceConfig(), WithProgress(func(processed, total int) {
		calls.Add(1)
	}, 1))
	require.NoError(t, err)

	result, err := service.ProcessReconciliation(context.Background(), request)
	require.NoError(t, err)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err, "run id is a uuid")
	assert.Equal(t, request.StatementFile, result.StatementFile)
	assert.Positive(t, calls.Load())

	require.NotNil(t, result.StatementStats)
	assert.Equal(t, 5, result.StatementStats.RecordsValid)
	assert.Equal(t, 1, result.StatementStats.RowsSkipped)
	require.NotNil(t, result.ReportStats)
	assert.Equal(t, 4, result.ReportStats.RecordsValid)
	assert.Equal(t, 1, result.ReportStats.RowsFiltered, "the other account is filtered out")

	// 100 exact, 250 = 150 + 100, -30 + -20 = -50 reverse, balance line residue
	assert.Equal(t, 1, result.EngineStats.ExactMatches)
	assert.Equal(t, 1, result.EngineStats.CombinationGroups)
	assert.Equal(t, 1, result.EngineStats.ReverseGroups)

	statuses := make(map[models.MatchKind]int)
	for _, row := range result.Rows {
		statuses[row.Status]++
	}
	assert.Equal(t, 1, statuses[models.MatchExact])
	assert.Equal(t, 4, statuses[models.MatchSum])
	assert.Equal(t, 1, statuses[models.MatchUnreconciled])

	require.Len(t, result.Days, 2)
	for _, day := range result.Days {
		assert.Equal(t, models.DayBalanced, day.Status, day.Date.Format(models.DayLayout))
	}

	assert.Equal(t, 6, result.Summary.TotalRows)
	assert.Equal(t, 5, result.Summary.MatchedRows)
	assert.InDelta(t, 83.333, result.Summary.ReconciliationRate, 0.001)
	assert.Empty(t, result.Summary.UnbalancedDays)
	assert.True(t, result.Summary.Difference.IsZero())
}

func TestReconciliationService_Errors(t *testing.T) {
	dir := t.TempDir()
	statement := writeFile(t, dir, "extrato.csv", serviceStatement)

	service, err := NewReconciliationService(serviceConfig())
	require.NoError(t, err)

	t.Run("missing report path", func(t *testing.T) {
		_, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{StatementFile: statement})
		require.Error(t, err)
		rerr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CategoryValidation, rerr.Category)
	})

	t.Run("report not found", func(t *testing.T) {
		_, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
			StatementFile: statement,
			ReportFile:    filepath.Join(dir, "missing.csv"),
		})
		require.Error(t, err)
		rerr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeFileNotFound, rerr.Code)
		assert.Equal(t, 2, rerr.GetExitCode())
	})

	t.Run("invalid configuration", func(t *testing.T) {
		config := serviceConfig()
		config.Parallelism = -1
		_, err := NewReconciliationService(config)
		require.Error(t, err)

		config = serviceConfig()
		config.ReportMapping.Account = ""
		_, err = NewReconciliationService(config)
		require.Error(t, err, "an account filter needs an account column")
	})
}

func TestReconciliationService_ReconcileRecords(t *testing.T) {
	config := DefaultConfig()
	config.Aggregation = &AggregatorConfig{BalanceMarker: "opening"}

	service, err := NewReconciliationService(config)
	require.NoError(t, err)

	opening := rec(t, "2024-03-01", "500.00")
	opening.Description = "Opening balance"
	statements := []*models.Record{opening, rec(t, "2024-03-01", "10.00")}
	reports := []*models.Record{rec(t, "2024-03-01", "10.00")}

	result, err := service.ReconcileRecords(context.Background(), statements, reports)
	require.NoError(t, err)

	require.Len(t, result.Days, 1)
	assert.Equal(t, models.DayBalanced, result.Days[0].Status, "the custom marker excludes the opening line")
	assert.Equal(t, 1, result.Summary.BalancedDays)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = service.ReconcileRecords(ctx, statements, reports)
	require.Error(t, err)
}
