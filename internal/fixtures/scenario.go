// Package fixtures generates statement and report pairs with a known shape:
// exact pairs, one statement split over several report entries, several
// statement lines grouped into one report entry, orphans and balance lines.
//
// The files it writes use the Brazilian export format read by the default
// profiles: ';' separated, DD/MM/YYYY dates and decimal commas.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	StatementFileName = "extrato.csv"
	ReportFileName    = "relatorio.csv"

	balanceDescription = "SALDO ANTERIOR"
)

var (
	creditDescriptions = []string{"TED recebida", "PIX recebido", "Deposito", "Cobranca liquidada", "Resgate aplicacao"}
	debitDescriptions  = []string{"Pagamento fornecedor", "Tarifa bancaria", "PIX enviado", "Boleto pago", "Folha de pagamento"}
	reportCustomers    = []string{"Cliente", "Fornecedor", "Parceiro", "Filial"}
)

// Config controls the shape of a generated scenario
type Config struct {
	Seed  int64
	Start time.Time
	Days  int

	ExactPerDay   int
	SplitsPerDay  int
	GroupsPerDay  int
	OrphansPerDay int
	// OrphanEvery puts orphans on every n-th day only; zero or one means every day
	OrphanEvery  int
	BalanceLines bool

	Layout parsers.ReportLayout
}

// DefaultConfig returns a one week scenario with every match kind
func DefaultConfig() *Config {
	return &Config{
		Seed:          1,
		Start:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Days:          7,
		ExactPerDay:   3,
		SplitsPerDay:  1,
		GroupsPerDay:  1,
		OrphansPerDay: 1,
		OrphanEvery:   3,
		BalanceLines:  true,
		Layout:        parsers.LayoutNature,
	}
}

// Validate checks the generator limits
func (c *Config) Validate() error {
	var err error
	if c.Days < 1 {
		err = multierr.Append(err, fmt.Errorf("days must be at least 1, got %d", c.Days))
	}
	counts := []struct {
		name string
		n    int
	}{
		{"exact", c.ExactPerDay},
		{"splits", c.SplitsPerDay},
		{"groups", c.GroupsPerDay},
		{"orphans", c.OrphansPerDay},
	}
	for _, count := range counts {
		if count.n < 0 {
			err = multierr.Append(err, fmt.Errorf("%s per day cannot be negative, got %d", count.name, count.n))
		}
	}
	if c.OrphanEvery < 0 {
		err = multierr.Append(err, fmt.Errorf("orphan interval cannot be negative, got %d", c.OrphanEvery))
	}
	if c.Layout != parsers.LayoutNature && c.Layout != parsers.LayoutSplit {
		err = multierr.Append(err, fmt.Errorf("unknown report layout '%s'", c.Layout))
	}
	return err
}

// Expectation describes what a scenario was built from
type Expectation struct {
	StatementLines int      `json:"statement_lines"`
	ReportEntries  int      `json:"report_entries"`
	ExactPairs     int      `json:"exact_pairs"`
	SplitGroups    int      `json:"split_groups"`
	ReverseGroups  int      `json:"reverse_groups"`
	Orphans        int      `json:"orphans"`
	BalanceLines   int      `json:"balance_lines"`
	Days           int      `json:"days"`
	UnbalancedDays []string `json:"unbalanced_days"`
}

// Scenario is a generated statement and report pair
type Scenario struct {
	Statements []*models.Record
	Reports    []*models.Record
	Layout     parsers.ReportLayout
	Expected   *Expectation
}

// Generate builds a scenario. The same config always yields the same records.
func Generate(config *Config) (*Scenario, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(config.Seed))
	scenario := &Scenario{
		Layout:   config.Layout,
		Expected: &Expectation{Days: config.Days, UnbalancedDays: []string{}},
	}

	for d := 0; d < config.Days; d++ {
		day := config.Start.AddDate(0, 0, d)
		var statements, reports []*models.Record

		if config.BalanceLines {
			statements = append(statements, models.NewRecord(day, randomAmount(rng, 100000, 5000000), balanceDescription))
			scenario.Expected.BalanceLines++
		}

		for i := 0; i < config.ExactPerDay; i++ {
			amount := signed(rng, randomAmount(rng, 1000, 2000000))
			statements = append(statements, models.NewRecord(day, amount, statementDescription(rng, amount)))
			reports = append(reports, models.NewRecord(day, amount, reportDescription(rng)))
			scenario.Expected.ExactPairs++
		}

		for i := 0; i < config.SplitsPerDay; i++ {
			split := recordsOf(day, partsOf(rng, 2+rng.Intn(3)), rng, reportDescription)
			total := models.SumAmounts(split)
			reports = append(reports, split...)
			statements = append(statements, models.NewRecord(day, total, statementDescription(rng, total)))
			scenario.Expected.SplitGroups++
		}

		for i := 0; i < config.GroupsPerDay; i++ {
			parts := partsOf(rng, 2+rng.Intn(4))
			group := recordsOf(day, parts, rng, func(r *rand.Rand) string {
				return statementDescription(r, parts[0])
			})
			statements = append(statements, group...)
			reports = append(reports, models.NewRecord(day, models.SumAmounts(group), reportDescription(rng)))
			scenario.Expected.ReverseGroups++
		}

		if config.OrphansPerDay > 0 && (config.OrphanEvery <= 1 || d%config.OrphanEvery == 0) {
			for i := 0; i < config.OrphansPerDay; i++ {
				amount := signed(rng, randomAmount(rng, 1000, 500000))
				statements = append(statements, models.NewRecord(day, amount, statementDescription(rng, amount)))
				scenario.Expected.Orphans++
			}
			scenario.Expected.UnbalancedDays = append(scenario.Expected.UnbalancedDays, models.FormatDisplayDate(day))
		}

		rng.Shuffle(len(statements), func(i, j int) { statements[i], statements[j] = statements[j], statements[i] })
		rng.Shuffle(len(reports), func(i, j int) { reports[i], reports[j] = reports[j], reports[i] })

		scenario.Statements = append(scenario.Statements, statements...)
		scenario.Reports = append(scenario.Reports, reports...)
	}

	scenario.Expected.StatementLines = len(scenario.Statements)
	scenario.Expected.ReportEntries = len(scenario.Reports)
	return scenario, nil
}

// randomAmount returns a positive amount between min and max cents
func randomAmount(rng *rand.Rand, minCents, maxCents int64) decimal.Decimal {
	return decimal.New(minCents+rng.Int63n(maxCents-minCents), -2)
}

// signed makes roughly 40% of the amounts debits
func signed(rng *rand.Rand, amount decimal.Decimal) decimal.Decimal {
	if rng.Float64() < 0.4 {
		return amount.Neg()
	}
	return amount
}

// partsOf returns n amounts of one sign
func partsOf(rng *rand.Rand, n int) []decimal.Decimal {
	debit := rng.Float64() < 0.4
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		parts[i] = randomAmount(rng, 1000, 1000000)
		if debit {
			parts[i] = parts[i].Neg()
		}
	}
	return parts
}

func recordsOf(day time.Time, amounts []decimal.Decimal, rng *rand.Rand, describe func(*rand.Rand) string) []*models.Record {
	records := make([]*models.Record, len(amounts))
	for i, amount := range amounts {
		records[i] = models.NewRecord(day, amount, describe(rng))
	}
	return records
}

func statementDescription(rng *rand.Rand, amount decimal.Decimal) string {
	if amount.IsNegative() {
		return debitDescriptions[rng.Intn(len(debitDescriptions))]
	}
	return creditDescriptions[rng.Intn(len(creditDescriptions))]
}

func reportDescription(rng *rand.Rand) string {
	return fmt.Sprintf("%s %03d", reportCustomers[rng.Intn(len(reportCustomers))], rng.Intn(1000))
}

// WriteStatementCSV writes the statement lines with the data;valor;historico header
func (s *Scenario) WriteStatementCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	if err := writer.Write([]string{"data", "valor", "historico"}); err != nil {
		return fmt.Errorf("failed to write statement header: %w", err)
	}
	for _, r := range s.Statements {
		if err := writer.Write([]string{models.FormatDisplayDate(r.Date), formatAmount(r.Amount), r.Description}); err != nil {
			return fmt.Errorf("failed to write statement line: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteReportCSV writes the report entries in the scenario's layout
func (s *Scenario) WriteReportCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	header := []string{"data", "historico", "valor", "natureza"}
	if s.Layout == parsers.LayoutSplit {
		header = []string{"data", "historico", "credito", "debito"}
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, r := range s.Reports {
		record := []string{models.FormatDisplayDate(r.Date), r.Description}
		switch {
		case s.Layout == parsers.LayoutSplit && r.Amount.IsNegative():
			record = append(record, "", formatAmount(r.Amount.Abs()))
		case s.Layout == parsers.LayoutSplit:
			record = append(record, formatAmount(r.Amount), "")
		case r.Amount.IsNegative():
			record = append(record, formatAmount(r.Amount.Abs()), "D")
		default:
			record = append(record, formatAmount(r.Amount), "C")
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write report entry: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFiles writes extrato.csv and relatorio.csv into dir
func (s *Scenario) WriteFiles(dir string) (statementPath, reportPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	statementPath = filepath.Join(dir, StatementFileName)
	if err := writeFile(statementPath, s.WriteStatementCSV); err != nil {
		return "", "", err
	}

	reportPath = filepath.Join(dir, ReportFileName)
	if err := writeFile(reportPath, s.WriteReportCSV); err != nil {
		return "", "", err
	}

	return statementPath, reportPath, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	return write(file)
}

// Days lists the distinct days of the scenario in order
func (s *Scenario) Days() []string {
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, r := range s.Statements {
		if !seen[r.Date] {
			seen[r.Date] = true
			days = append(days, r.Date)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]string, len(days))
	for i, d := range days {
		out[i] = models.FormatDisplayDate(d)
	}
	return out
}

func formatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}
