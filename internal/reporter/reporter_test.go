package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reconciler"

	"github.com/shopspring/decimal"
)

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:       "invalid",
				CSVContent:   CSVRows,
				CSVDelimiter: ';',
			},
			expectError: true,
		},
		{
			name: "negative max rows",
			config: &ReportConfig{
				Format:       FormatConsole,
				MaxRows:      -1,
				CSVContent:   CSVRows,
				CSVDelimiter: ';',
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.valid {
				t.Errorf("IsValid(%q) = %v, expected %v", tt.format, got, tt.valid)
			}
		})
	}
}

func TestReportConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *ReportConfig)
		valid  bool
	}{
		{"defaults", func(c *ReportConfig) {}, true},
		{"days content", func(c *ReportConfig) { c.CSVContent = CSVDays }, true},
		{"unknown content", func(c *ReportConfig) { c.CSVContent = "groups" }, false},
		{"quote delimiter", func(c *ReportConfig) { c.CSVDelimiter = '"' }, false},
		{"zero delimiter", func(c *ReportConfig) { c.CSVDelimiter = 0 }, false},
		{"tab delimiter", func(c *ReportConfig) { c.CSVDelimiter = '\t' }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultReportConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected error but got none")
			}
		})
	}
}

func TestGenerateReport(t *testing.T) {
	result := createSampleReconciliationResult()

	tests := []struct {
		name        string
		config      *ReportConfig
		result      *reconciler.ReconciliationResult
		expectError bool
		checkOutput func(t *testing.T, output string)
	}{
		{
			name:   "console format",
			config: DefaultReportConfig(),
			result: result,
			checkOutput: func(t *testing.T, output string) {
				for _, section := range []string{
					"RECONCILIATION REPORT",
					"=== SUMMARY ===",
					"=== RESULT ROWS ===",
					"=== DAILY BALANCE ===",
					"=== PROCESSING STATISTICS ===",
				} {
					if !strings.Contains(output, section) {
						t.Errorf("console output should contain %q", section)
					}
				}
				if !strings.Contains(output, "Matched:       3 (75.0%)") {
					t.Errorf("console output should contain the match rate, got:\n%s", output)
				}
				if !strings.Contains(output, "01/03/2024") {
					t.Errorf("console output should use DD/MM/YYYY dates")
				}
				if !strings.Contains(output, "R$ 100,00") {
					t.Errorf("console output should format amounts as currency")
				}
				if strings.Contains(output, "\033[") {
					t.Errorf("colors must not be written to a non-terminal writer")
				}
			},
		},
		{
			name:   "JSON format",
			config: &ReportConfig{Format: FormatJSON, CSVContent: CSVRows, CSVDelimiter: ';'},
			result: result,
			checkOutput: func(t *testing.T, output string) {
				var jsonData map[string]interface{}
				if err := json.Unmarshal([]byte(output), &jsonData); err != nil {
					t.Fatalf("output should be valid JSON: %v", err)
				}
				for _, key := range []string{"run_id", "summary", "rows", "days", "engine_stats"} {
					if _, exists := jsonData[key]; !exists {
						t.Errorf("JSON output should contain %s", key)
					}
				}
				if _, exists := jsonData["Groups"]; exists {
					t.Errorf("groups are not part of the JSON output")
				}
				days, _ := jsonData["days"].([]interface{})
				if len(days) != 2 {
					t.Fatalf("expected 2 days, got %d", len(days))
				}
				first, _ := days[0].(map[string]interface{})
				if first["date"] != "2024-03-01" || first["status"] != "Balanced" {
					t.Errorf("unexpected first day: %v", first)
				}
			},
		},
		{
			name:        "nil result",
			config:      DefaultReportConfig(),
			result:      nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if err != nil {
				t.Fatalf("failed to create report generator: %v", err)
			}

			var buffer bytes.Buffer
			err = generator.GenerateReport(tt.result, &buffer)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.checkOutput != nil {
					tt.checkOutput(t, buffer.String())
				}
			}
		})
	}
}

func TestCSVRows(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{
		Format:       FormatCSV,
		CSVContent:   CSVRows,
		CSVDelimiter: ';',
		CSVHeaders:   true,
		CSVBOM:       true,
	})
	if err != nil {
		t.Fatalf("failed to create report generator: %v", err)
	}

	var buffer bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buffer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buffer.String()
	if !strings.HasPrefix(output, "\ufeff") {
		t.Fatalf("CSV output should start with a byte order mark")
	}

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(output, "\ufeff")), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header and 4 rows, got %d lines:\n%s", len(lines), output)
	}

	expected := []string{
		"statement_date;statement_amount;statement_description;report_date;report_amount;report_description;status",
		"01/03/2024;100,00;TED recebida;01/03/2024;100,00;Cliente A;Exact",
		"01/03/2024;250,00;Deposito;01/03/2024;150,00;Cliente B;SumMatch",
		"01/03/2024;250,00;Deposito;01/03/2024;100,00;Cliente C;SumMatch",
		"02/03/2024;-12,50;Tarifa;;;;Unreconciled",
	}
	for i, want := range expected {
		if lines[i] != want {
			t.Errorf("line %d = %q, expected %q", i, lines[i], want)
		}
	}
}

func TestCSVDays(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{
		Format:       FormatCSV,
		CSVContent:   CSVDays,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	})
	if err != nil {
		t.Fatalf("failed to create report generator: %v", err)
	}

	var buffer bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buffer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buffer.String()
	if strings.HasPrefix(output, "\ufeff") {
		t.Errorf("byte order mark should be omitted when disabled")
	}

	expected := "date,statement_total,report_total,difference,status\n" +
		"01/03/2024,350.00,350.00,0.00,Balanced\n" +
		"02/03/2024,-12.50,0.00,-12.50,Unbalanced\n"
	if output != expected {
		t.Errorf("unexpected days CSV:\n%s\nexpected:\n%s", output, expected)
	}
}

func TestConsoleRowFiltering(t *testing.T) {
	result := createSampleReconciliationResult()

	t.Run("unmatched only", func(t *testing.T) {
		config := DefaultReportConfig()
		config.IncludeMatchedRows = false
		generator, _ := NewReportGenerator(config)

		var buffer bytes.Buffer
		if err := generator.GenerateReport(result, &buffer); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rows := sectionOf(buffer.String(), "=== RESULT ROWS ===")
		if strings.Contains(rows, "Cliente A") {
			t.Errorf("matched rows should be hidden:\n%s", rows)
		}
		if !strings.Contains(rows, "Tarifa") {
			t.Errorf("unreconciled rows should be shown:\n%s", rows)
		}
	})

	t.Run("max rows", func(t *testing.T) {
		config := DefaultReportConfig()
		config.MaxRows = 2
		generator, _ := NewReportGenerator(config)

		var buffer bytes.Buffer
		if err := generator.GenerateReport(result, &buffer); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buffer.String(), "... 2 more rows not shown") {
			t.Errorf("expected truncation notice, got:\n%s", buffer.String())
		}
	})

	t.Run("without days", func(t *testing.T) {
		config := DefaultReportConfig()
		config.IncludeDays = false
		generator, _ := NewReportGenerator(config)

		var buffer bytes.Buffer
		if err := generator.GenerateReport(result, &buffer); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buffer.String(), "DAILY BALANCE") {
			t.Errorf("daily section should be omitted")
		}
	})
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(DefaultReportConfig())

	newConfig := DefaultReportConfig()
	newConfig.Format = FormatJSON
	if err := generator.UpdateConfiguration(newConfig); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if generator.GetConfiguration().Format != FormatJSON {
		t.Errorf("configuration was not updated")
	}

	invalid := DefaultReportConfig()
	invalid.Format = "xml"
	if err := generator.UpdateConfiguration(invalid); err == nil {
		t.Errorf("expected error for invalid configuration")
	}
	if generator.GetConfiguration().Format != FormatJSON {
		t.Errorf("configuration should be unchanged after a failed update")
	}
}

func TestEmptyResultHandling(t *testing.T) {
	result := &reconciler.ReconciliationResult{
		RunID:     "empty",
		StartedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Summary:   reconciler.Summarize(nil, nil),
	}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format
			generator, _ := NewReportGenerator(config)

			var buffer bytes.Buffer
			if err := generator.GenerateReport(result, &buffer); err != nil {
				t.Errorf("unexpected error for empty result: %v", err)
			}
			if buffer.Len() == 0 {
				t.Errorf("expected some output for an empty result")
			}
		})
	}
}

func TestSafeReportGenerator(t *testing.T) {
	result := createSampleReconciliationResult()

	generator, err := NewSafeReportGenerator(DefaultReportConfig(), nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	t.Run("rejects missing inputs", func(t *testing.T) {
		if err := generator.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
			t.Errorf("expected error for nil result")
		}
		if err := generator.GenerateReportSafely(result, nil); err == nil {
			t.Errorf("expected error for nil writer")
		}
	})

	t.Run("writes report file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "report.txt")
		if err := generator.WriteReportFile(result, path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report file not written: %v", err)
		}
		if !strings.Contains(string(content), "RECONCILIATION REPORT") {
			t.Errorf("unexpected report content:\n%s", content)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		config := DefaultReportConfig()
		config.Format = "pdf"
		if _, err := NewSafeReportGenerator(config, nil); err == nil {
			t.Errorf("expected error for invalid configuration")
		}
	})
}

func TestGenerateBackupPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{filepath.Join("out", "report.csv"), filepath.Join("out", "report_backup.csv")},
		{"report", "report_backup"},
	}
	for _, tt := range tests {
		if got := generateBackupPath(tt.input); got != tt.expected {
			t.Errorf("generateBackupPath(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func sectionOf(output, header string) string {
	start := strings.Index(output, header)
	if start < 0 {
		return ""
	}
	rest := output[start+len(header):]
	if end := strings.Index(rest, "==="); end >= 0 {
		return rest[:end]
	}
	return rest
}

func createSampleReconciliationResult() *reconciler.ReconciliationResult {
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	stmtTED := models.NewRecord(day1, decimal.RequireFromString("100.00"), "TED recebida")
	stmtDeposit := models.NewRecord(day1, decimal.RequireFromString("250.00"), "Deposito")
	stmtFee := models.NewRecord(day2, decimal.RequireFromString("-12.50"), "Tarifa")
	reportA := models.NewRecord(day1, decimal.RequireFromString("100.00"), "Cliente A")
	reportB := models.NewRecord(day1, decimal.RequireFromString("150.00"), "Cliente B")
	reportC := models.NewRecord(day1, decimal.RequireFromString("100.00"), "Cliente C")

	rows := []*models.ResultRow{
		{Statement: stmtTED, Report: reportA, Status: models.MatchExact},
		{Statement: stmtDeposit, Report: reportB, Status: models.MatchSum},
		{Statement: stmtDeposit, Report: reportC, Status: models.MatchSum},
		{Statement: stmtFee, Status: models.MatchUnreconciled},
	}

	days := reconciler.NewDailyAggregator(nil).Aggregate(rows)

	return &reconciler.ReconciliationResult{
		RunID:         "2f1c5a9e-0000-4000-8000-000000000001",
		StartedAt:     time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
		StatementFile: "extrato.csv",
		ReportFile:    "relatorio.csv",
		Rows:          rows,
		Days:          days,
		Summary:       reconciler.Summarize(rows, days),
		EngineStats: &reconciler.EngineStats{
			StatementRecords:  3,
			ReportRecords:     3,
			Days:              2,
			ExactMatches:      1,
			CombinationGroups: 1,
		},
	}
}
