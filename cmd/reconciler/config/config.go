// Package config turns command-line flags, RECONCILER_ environment variables
// and an optional config file into the configuration of a reconciliation run.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/profiles"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix is the prefix of the environment variables read by the CLI
const EnvPrefix = "RECONCILER"

// Settings mirrors the reconcile flags. Empty column names fall back to the
// selected profile, then to the default mapping.
type Settings struct {
	StatementFile string `mapstructure:"statement"`
	ReportFile    string `mapstructure:"report"`
	Profile       string `mapstructure:"profile"`
	ProfilesDir   string `mapstructure:"profiles-dir"`

	StatementDate        string `mapstructure:"statement-date"`
	StatementAmount      string `mapstructure:"statement-amount"`
	StatementDescription string `mapstructure:"statement-description"`
	StatementDelimiter   string `mapstructure:"statement-delimiter"`

	ReportLayout      string `mapstructure:"report-layout"`
	ReportDate        string `mapstructure:"report-date"`
	ReportDescription string `mapstructure:"report-description"`
	ReportAmount      string `mapstructure:"report-amount"`
	ReportNature      string `mapstructure:"report-nature"`
	ReportCredit      string `mapstructure:"report-credit"`
	ReportDebit       string `mapstructure:"report-debit"`
	ReportAccount     string `mapstructure:"report-account"`
	ReportDelimiter   string `mapstructure:"report-delimiter"`
	Account           string `mapstructure:"account"`

	Epsilon                decimal.Decimal `mapstructure:"epsilon"`
	MaxCandidates          int             `mapstructure:"max-candidates"`
	MaxCombinationSize     int             `mapstructure:"max-combination-size"`
	MaxCombinationEstimate int64           `mapstructure:"max-combination-estimate"`
	MaxSubsets             int             `mapstructure:"max-subsets"`
	MaxReverseSize         int             `mapstructure:"max-reverse-size"`
	ReverseGuard           bool            `mapstructure:"reverse-guard"`

	BalanceMarker    string `mapstructure:"balance-marker"`
	Parallelism      int    `mapstructure:"parallelism"`
	ProgressInterval int    `mapstructure:"progress-interval"`
	MaxErrors        int    `mapstructure:"max-errors"`

	Format        string `mapstructure:"format"`
	Output        string `mapstructure:"output"`
	DaysOutput    string `mapstructure:"days-output"`
	CSVDelimiter  string `mapstructure:"csv-delimiter"`
	MaxRows       int    `mapstructure:"max-rows"`
	UnmatchedOnly bool   `mapstructure:"unmatched-only"`
	NoColor       bool   `mapstructure:"no-color"`

	Verbose   bool   `mapstructure:"verbose"`
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`
}

// RegisterMappingFlags adds the column mapping flags shared by reconcile and
// profile save
func RegisterMappingFlags(flags *pflag.FlagSet) {
	flags.String("statement-date", "", "statement date column")
	flags.String("statement-amount", "", "statement amount column")
	flags.String("statement-description", "", "statement description column")
	flags.String("statement-delimiter", "", "statement delimiter: , ; tab | (default auto)")

	flags.String("report-layout", "", "report layout: nature (amount + C/D column) or split (credit and debit columns)")
	flags.String("report-date", "", "report date column")
	flags.String("report-description", "", "report description column")
	flags.String("report-amount", "", "report amount column (nature layout)")
	flags.String("report-nature", "", "report nature column (nature layout)")
	flags.String("report-credit", "", "report credit column (split layout)")
	flags.String("report-debit", "", "report debit column (split layout)")
	flags.String("report-account", "", "report account column, needed by --account")
	flags.String("report-delimiter", "", "report delimiter: , ; tab | (default auto)")
	flags.String("account", "", "keep only report rows of this account")
}

// RegisterReconcileFlags adds every flag of the reconcile command
func RegisterReconcileFlags(flags *pflag.FlagSet) {
	defaults := matcher.DefaultConfig()
	report := reporter.DefaultReportConfig()

	flags.StringP("statement", "s", "", "bank statement CSV file (required)")
	flags.StringP("report", "r", "", "ERP report CSV file (required)")
	flags.StringP("profile", "p", "", "mapping profile to start from")

	RegisterMappingFlags(flags)

	flags.String("epsilon", defaults.Epsilon.String(), "amount tolerance; differences strictly below it are equal")
	flags.Int("max-candidates", defaults.MaxCandidates, "report candidates considered per combination search")
	flags.Int("max-combination-size", defaults.MaxCombinationSize, "largest report subset tried for one statement line")
	flags.Int64("max-combination-estimate", defaults.MaxCombinationEstimate, "skip a subset size with more combinations than this")
	flags.Int("max-subsets", defaults.MaxSubsetsExamined, "subset budget of one combination search")
	flags.Int("max-reverse-size", defaults.MaxReverseSize, "largest statement subset tried for one report line")
	flags.Bool("reverse-guard", defaults.ReverseGuard, "apply the estimate guard and subset budget to the reverse search")

	flags.String("balance-marker", reconciler.DefaultBalanceMarker, "statement descriptions containing this are left out of day totals (empty disables)")
	flags.Int("parallelism", 1, "days matched concurrently")
	flags.Int("progress-interval", 0, "log progress every N statement lines (0 disables)")
	flags.Int("max-errors", parsers.DefaultMaxErrors, "row errors kept per input file")

	flags.StringP("format", "f", string(report.Format), "output format: console, json, csv")
	flags.StringP("output", "o", "", "output file (default stdout)")
	flags.String("days-output", "", "also write the daily balance as CSV to this file")
	flags.String("csv-delimiter", string(report.CSVDelimiter), "CSV output delimiter")
	flags.Int("max-rows", 0, "result rows printed on the console (0 prints all)")
	flags.Bool("unmatched-only", false, "print only unreconciled rows on the console")
	flags.Bool("no-color", false, "disable colored console output")
}

// BindFlags binds every flag of the set to its viper key
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		err = multierr.Append(err, v.BindPFlag(f.Name, f))
	})
	return err
}

// ConfigureEnv makes RECONCILER_MAX_CANDIDATES override --max-candidates and so on
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load decodes the viper state into Settings
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.Epsilon.IsZero() && !v.IsSet("epsilon") {
		s.Epsilon = matcher.DefaultEpsilon
	}
	return &s, nil
}

// DecodeHook converts config values to the types used by Settings
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(decimalHook),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		return models.ParseDecimalFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return data, nil
	}
}

// Validate checks the settings that can be checked before any file is read.
// All problems are reported together.
func (s *Settings) Validate() error {
	var err error

	if strings.TrimSpace(s.StatementFile) == "" {
		err = multierr.Append(err, fmt.Errorf("--statement is required"))
	}
	if strings.TrimSpace(s.ReportFile) == "" {
		err = multierr.Append(err, fmt.Errorf("--report is required"))
	}
	if s.ReportLayout != "" {
		if _, layoutErr := parsers.ParseReportLayout(s.ReportLayout); layoutErr != nil {
			err = multierr.Append(err, layoutErr)
		}
	}
	for _, d := range []string{s.StatementDelimiter, s.ReportDelimiter} {
		if _, delimErr := parsers.ParseDelimiter(d); delimErr != nil {
			err = multierr.Append(err, delimErr)
		}
	}
	if !reporter.OutputFormat(s.Format).IsValid() {
		err = multierr.Append(err, fmt.Errorf("invalid output format '%s' (expected console, json or csv)", s.Format))
	}
	if _, delimErr := s.csvDelimiter(); delimErr != nil {
		err = multierr.Append(err, delimErr)
	}
	if s.Parallelism < 1 {
		err = multierr.Append(err, fmt.Errorf("parallelism must be at least 1, got %d", s.Parallelism))
	}
	if s.ProgressInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("progress interval cannot be negative, got %d", s.ProgressInterval))
	}
	if s.MaxRows < 0 {
		err = multierr.Append(err, fmt.Errorf("max rows cannot be negative, got %d", s.MaxRows))
	}

	matching := s.MatchingConfig()
	if matchErr := matching.Validate(); matchErr != nil {
		err = multierr.Append(err, matchErr)
	}

	return err
}

// MatchingConfig builds the matcher limits
func (s *Settings) MatchingConfig() *matcher.Config {
	return &matcher.Config{
		Epsilon:                s.Epsilon,
		MaxCandidates:          s.MaxCandidates,
		MaxCombinationSize:     s.MaxCombinationSize,
		MaxCombinationEstimate: s.MaxCombinationEstimate,
		MaxSubsetsExamined:     s.MaxSubsets,
		MaxReverseSize:         s.MaxReverseSize,
		ReverseGuard:           s.ReverseGuard,
	}
}

// Mappings layers the column flags over the profile, or over the default
// mappings when profile is nil
func (s *Settings) Mappings(profile *profiles.Profile) (*parsers.StatementMapping, *parsers.ReportMapping, error) {
	statement := parsers.DefaultStatementMapping()
	report := parsers.DefaultReportMapping()
	if profile != nil {
		stmtCopy, reportCopy := profile.Statement, profile.Report
		statement, report = &stmtCopy, &reportCopy
	}

	override(&statement.Date, s.StatementDate)
	override(&statement.Amount, s.StatementAmount)
	override(&statement.Description, s.StatementDescription)
	override(&statement.Delimiter, s.StatementDelimiter)

	if s.ReportLayout != "" {
		layout, err := parsers.ParseReportLayout(s.ReportLayout)
		if err != nil {
			return nil, nil, err
		}
		report.Layout = layout
	}
	override(&report.Date, s.ReportDate)
	override(&report.Description, s.ReportDescription)
	override(&report.Amount, s.ReportAmount)
	override(&report.Nature, s.ReportNature)
	override(&report.Credit, s.ReportCredit)
	override(&report.Debit, s.ReportDebit)
	override(&report.Account, s.ReportAccount)
	override(&report.Delimiter, s.ReportDelimiter)

	return statement, report, nil
}

func override(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

// ReconcilerConfig builds the service configuration
func (s *Settings) ReconcilerConfig(profile *profiles.Profile) (*reconciler.Config, error) {
	statement, report, err := s.Mappings(profile)
	if err != nil {
		return nil, err
	}

	account := s.Account
	if account == "" && profile != nil {
		account = profile.Account
	}

	config := reconciler.DefaultConfig()
	config.Matching = s.MatchingConfig()
	config.Aggregation = &reconciler.AggregatorConfig{BalanceMarker: s.BalanceMarker}
	config.StatementMapping = statement
	config.ReportMapping = report
	config.Account = account
	config.Parallelism = s.Parallelism
	config.MaxErrors = s.MaxErrors

	return config, nil
}

// ReportConfig builds the main report configuration
func (s *Settings) ReportConfig() (*reporter.ReportConfig, error) {
	delimiter, err := s.csvDelimiter()
	if err != nil {
		return nil, err
	}

	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(s.Format)
	config.IncludeMatchedRows = !s.UnmatchedOnly
	config.MaxRows = s.MaxRows
	config.UseColors = !s.NoColor
	config.CSVDelimiter = delimiter
	return config, config.Validate()
}

// DaysReportConfig builds the configuration of the --days-output file
func (s *Settings) DaysReportConfig() (*reporter.ReportConfig, error) {
	config, err := s.ReportConfig()
	if err != nil {
		return nil, err
	}
	config.Format = reporter.FormatCSV
	config.CSVContent = reporter.CSVDays
	return config, nil
}

func (s *Settings) csvDelimiter() (rune, error) {
	if s.CSVDelimiter == "" {
		return reporter.DefaultReportConfig().CSVDelimiter, nil
	}
	d, err := parsers.ParseDelimiter(s.CSVDelimiter)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return reporter.DefaultReportConfig().CSVDelimiter, nil
	}
	return d, nil
}

// LoggerConfig builds the logger configuration. --verbose forces debug.
func (s *Settings) LoggerConfig() *logger.Config {
	config := logger.DefaultConfig()
	if s.LogLevel != "" {
		config.Level = logger.Level(strings.ToLower(s.LogLevel))
	}
	if s.Verbose {
		config.Level = logger.DebugLevel
	}
	if s.LogFormat != "" {
		config.Format = logger.Format(strings.ToLower(s.LogFormat))
	}
	if s.LogFile != "" {
		config.Output = logger.FileOutput
		config.File = s.LogFile
	}
	return config
}
