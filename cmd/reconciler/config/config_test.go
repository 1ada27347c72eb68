package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/profiles"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

func loadSettings(t *testing.T, args []string, configure func(v *viper.Viper)) *Settings {
	t.Helper()

	flags := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	RegisterReconcileFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	v := viper.New()
	ConfigureEnv(v)
	if err := BindFlags(v, flags); err != nil {
		t.Fatalf("failed to bind flags: %v", err)
	}
	if configure != nil {
		configure(v)
	}

	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	return settings
}

func TestLoadDefaults(t *testing.T) {
	settings := loadSettings(t, nil, nil)

	if !settings.Epsilon.Equal(decimal.RequireFromString("0.0001")) {
		t.Errorf("expected default epsilon 0.0001, got %s", settings.Epsilon)
	}
	if settings.MaxCandidates != 15 {
		t.Errorf("expected MaxCandidates 15, got %d", settings.MaxCandidates)
	}
	if settings.MaxCombinationSize != 4 || settings.MaxReverseSize != 5 {
		t.Errorf("unexpected subset sizes: %d/%d", settings.MaxCombinationSize, settings.MaxReverseSize)
	}
	if settings.MaxCombinationEstimate != 10000 || settings.MaxSubsets != 1000 {
		t.Errorf("unexpected search limits: %d/%d", settings.MaxCombinationEstimate, settings.MaxSubsets)
	}
	if settings.ReverseGuard {
		t.Error("expected reverse guard to be off by default")
	}
	if settings.Format != "console" {
		t.Errorf("expected console format, got %s", settings.Format)
	}
	if settings.BalanceMarker != "saldo" {
		t.Errorf("expected balance marker 'saldo', got %q", settings.BalanceMarker)
	}
	if settings.Parallelism != 1 {
		t.Errorf("expected parallelism 1, got %d", settings.Parallelism)
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("RECONCILER_PARALLELISM", "4")
	t.Setenv("RECONCILER_MAX_CANDIDATES", "12")

	configFile := filepath.Join(t.TempDir(), "reconciler.yaml")
	content := "max-subsets: 500\nreverse-guard: true\nbalance-marker: opening\nmax-candidates: 9\n"
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	settings := loadSettings(t,
		[]string{"--statement", "extrato.csv", "-r", "relatorio.csv", "--epsilon", "0,01", "--max-candidates", "20"},
		func(v *viper.Viper) {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				t.Fatalf("failed to read config file: %v", err)
			}
		})

	if settings.StatementFile != "extrato.csv" || settings.ReportFile != "relatorio.csv" {
		t.Errorf("unexpected files: %q %q", settings.StatementFile, settings.ReportFile)
	}
	if !settings.Epsilon.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected epsilon 0.01 from a decimal-comma flag, got %s", settings.Epsilon)
	}
	if settings.MaxCandidates != 20 {
		t.Errorf("flag should win over env and file, got %d", settings.MaxCandidates)
	}
	if settings.Parallelism != 4 {
		t.Errorf("expected parallelism 4 from the environment, got %d", settings.Parallelism)
	}
	if settings.MaxSubsets != 500 || !settings.ReverseGuard || settings.BalanceMarker != "opening" {
		t.Errorf("config file values not applied: %+v", settings)
	}
}

func TestDecimalHook(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"plain string", "0.005", "0.005"},
		{"decimal comma", "0,5", "0.5"},
		{"float", 0.25, "0.25"},
		{"int", 2, "2"},
		{"empty", "", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := decimalHook(nil, decimalType, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			d, ok := out.(decimal.Decimal)
			if !ok {
				t.Fatalf("expected decimal.Decimal, got %T", out)
			}
			if !d.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("expected %s, got %s", tt.expected, d)
			}
		})
	}

	if _, err := decimalHook(nil, decimalType, "abc"); err == nil {
		t.Error("expected error for a non-numeric epsilon")
	}

	out, err := decimalHook(nil, reflect.TypeOf(""), "keep")
	if err != nil || out != "keep" {
		t.Errorf("non-decimal targets must pass through, got %v %v", out, err)
	}
}

func TestSettingsValidate(t *testing.T) {
	settings := loadSettings(t, []string{"-s", "a.csv", "-r", "b.csv"}, nil)
	if err := settings.Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}

	invalid := loadSettings(t, []string{
		"--format", "xml",
		"--report-layout", "ledger",
		"--statement-delimiter", "#",
		"--parallelism", "0",
		"--max-candidates", "1",
	}, nil)

	err := invalid.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	errs := multierr.Errors(err)
	if len(errs) != 7 {
		t.Errorf("expected 7 problems reported together, got %d: %v", len(errs), err)
	}
	for _, want := range []string{"--statement is required", "--report is required", "invalid output format", "unknown report layout", "parallelism", "max candidates"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestMappings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		settings := loadSettings(t, nil, nil)
		statement, report, err := settings.Mappings(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if statement.Date != "date" || report.Nature != "nature" || report.Layout != parsers.LayoutNature {
			t.Errorf("unexpected default mappings: %+v %+v", statement, report)
		}
	})

	t.Run("profile with overrides", func(t *testing.T) {
		profile := profiles.Builtins()[2]
		settings := loadSettings(t, []string{"--statement-amount", "Montante", "--report-account", "conta", "--report-delimiter", "tab"}, nil)

		statement, report, err := settings.Mappings(profile)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if statement.Date != "data" || statement.Amount != "Montante" {
			t.Errorf("unexpected statement mapping: %+v", statement)
		}
		if report.Layout != parsers.LayoutSplit || report.Credit != "credito" || report.Account != "conta" || report.Delimiter != "tab" {
			t.Errorf("unexpected report mapping: %+v", report)
		}
		if profile.Statement.Amount == "Montante" {
			t.Error("the profile must not be modified")
		}
	})

	t.Run("layout flag", func(t *testing.T) {
		settings := loadSettings(t, []string{"--report-layout", "credit-debit"}, nil)
		_, report, err := settings.Mappings(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Layout != parsers.LayoutSplit {
			t.Errorf("expected split layout, got %s", report.Layout)
		}
	})
}

func TestReconcilerConfig(t *testing.T) {
	profile := &profiles.Profile{
		Name:      "bank",
		Statement: *parsers.DefaultStatementMapping(),
		Report:    *parsers.DefaultReportMapping(),
		Account:   "1.1.01",
	}
	profile.Report.Account = "conta"

	settings := loadSettings(t, []string{"--balance-marker=", "--parallelism", "3", "--reverse-guard"}, nil)
	config, err := settings.ReconcilerConfig(profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Account != "1.1.01" {
		t.Errorf("expected the profile account filter, got %q", config.Account)
	}
	if config.Aggregation.BalanceMarker != "" {
		t.Errorf("expected the balance marker to be disabled, got %q", config.Aggregation.BalanceMarker)
	}
	if config.Parallelism != 3 || !config.Matching.ReverseGuard {
		t.Errorf("unexpected engine settings: %+v", config)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("built configuration should be valid: %v", err)
	}

	settings = loadSettings(t, []string{"--account", "2.1.01"}, nil)
	config, _ = settings.ReconcilerConfig(profile)
	if config.Account != "2.1.01" {
		t.Errorf("the --account flag should win over the profile, got %q", config.Account)
	}
}

func TestReportConfig(t *testing.T) {
	settings := loadSettings(t, []string{"-f", "csv", "--csv-delimiter", "tab", "--unmatched-only", "--no-color", "--max-rows", "10"}, nil)

	config, err := settings.ReportConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Format != reporter.FormatCSV || config.CSVDelimiter != '\t' {
		t.Errorf("unexpected format settings: %+v", config)
	}
	if config.IncludeMatchedRows || config.UseColors || config.MaxRows != 10 {
		t.Errorf("unexpected console settings: %+v", config)
	}

	days, err := settings.DaysReportConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days.CSVContent != reporter.CSVDays || days.Format != reporter.FormatCSV {
		t.Errorf("unexpected days settings: %+v", days)
	}
	if config.CSVContent != reporter.CSVRows {
		t.Error("the days configuration must be a copy")
	}
}

func TestLoggerConfig(t *testing.T) {
	settings := &Settings{LogLevel: "WARN", LogFormat: "json"}
	config := settings.LoggerConfig()
	if config.Level != logger.WarnLevel || config.Format != logger.JSONFormat {
		t.Errorf("unexpected logger config: %+v", config)
	}

	settings.Verbose = true
	settings.LogFile = "run.log"
	config = settings.LoggerConfig()
	if config.Level != logger.DebugLevel {
		t.Errorf("verbose should force debug, got %s", config.Level)
	}
	if config.Output != logger.FileOutput || config.File != "run.log" {
		t.Errorf("unexpected log output: %+v", config)
	}
}
