package reconciler

import (
	"sort"
	"strings"
	"time"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultBalanceMarker identifies balance snapshot lines in statement descriptions
const DefaultBalanceMarker = "saldo"

// AggregatorConfig configures a DailyAggregator
type AggregatorConfig struct {
	// BalanceMarker excludes statement lines whose description contains it,
	// case-insensitively. Empty disables the exclusion.
	BalanceMarker string `json:"balance_marker"`

	// Epsilon is the tolerance for the per-day balance check
	Epsilon decimal.Decimal `json:"epsilon"`
}

// DefaultAggregatorConfig returns the default aggregator configuration
func DefaultAggregatorConfig() *AggregatorConfig {
	return &AggregatorConfig{
		BalanceMarker: DefaultBalanceMarker,
		Epsilon:       matcher.DefaultEpsilon,
	}
}

// DailyAggregator folds result rows into one DayBucket per calendar day
type DailyAggregator struct {
	marker string
	cmp    matcher.Comparator
}

// NewDailyAggregator creates an aggregator; a nil config uses the defaults
func NewDailyAggregator(config *AggregatorConfig) *DailyAggregator {
	if config == nil {
		config = DefaultAggregatorConfig()
	}
	return &DailyAggregator{
		marker: strings.ToLower(strings.TrimSpace(config.BalanceMarker)),
		cmp:    matcher.NewComparator(config.Epsilon),
	}
}

// IsBalanceLine reports whether a statement record is a balance snapshot
func (a *DailyAggregator) IsBalanceLine(r *models.Record) bool {
	return a.marker != "" && strings.Contains(strings.ToLower(r.Description), a.marker)
}

// Aggregate builds the day buckets for a result row list.
// Statement totals cover every dated statement record regardless of outcome.
// Report totals cover only report records in an Exact or SumMatch row, each
// record counted once even when it appears on several rows. The rows are not
// modified, so aggregating twice yields the same buckets.
func (a *DailyAggregator) Aggregate(rows []*models.ResultRow) []*models.DayBucket {
	buckets := make(map[string]*models.DayBucket)
	seenStatements := make(map[*models.Record]bool)
	seenReports := make(map[*models.Record]bool)

	bucket := func(r *models.Record) *models.DayBucket {
		day := r.Day()
		b, ok := buckets[day]
		if !ok {
			b = &models.DayBucket{
				Date:           models.TruncateToDay(r.Date),
				StatementTotal: decimal.Zero,
				ReportTotal:    decimal.Zero,
			}
			buckets[day] = b
		}
		return b
	}

	for _, row := range rows {
		if s := row.Statement; s != nil && s.HasDate() && !seenStatements[s] {
			seenStatements[s] = true
			if !a.IsBalanceLine(s) {
				b := bucket(s)
				b.StatementTotal = b.StatementTotal.Add(s.Amount)
			}
		}

		if r := row.Report; r != nil && r.HasDate() && row.Status.IsMatched() && !seenReports[r] {
			seenReports[r] = true
			b := bucket(r)
			b.ReportTotal = b.ReportTotal.Add(r.Amount)
		}
	}

	result := make([]*models.DayBucket, 0, len(buckets))
	for _, b := range buckets {
		if a.cmp.Equal(b.StatementTotal, b.ReportTotal) {
			b.Status = models.DayBalanced
		} else {
			b.Status = models.DayUnbalanced
		}
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result
}

// Summary is the headline view of a reconciliation run
type Summary struct {
	TotalRows          int     `json:"total_rows"`
	MatchedRows        int     `json:"matched_rows"`
	UnreconciledRows   int     `json:"unreconciled_rows"`
	ReconciliationRate float64 `json:"reconciliation_rate"`

	ExactRows int `json:"exact_rows"`
	SumRows   int `json:"sum_rows"`

	TotalDays      int         `json:"total_days"`
	BalancedDays   int         `json:"balanced_days"`
	UnbalancedDays []time.Time `json:"unbalanced_days"`

	StatementTotal decimal.Decimal `json:"statement_total"`
	ReportTotal    decimal.Decimal `json:"report_total"`
	Difference     decimal.Decimal `json:"difference"`
}

// Summarize computes the headline numbers from the rows and their day buckets.
// The rate is the share of matched rows among all rows, in percent.
func Summarize(rows []*models.ResultRow, days []*models.DayBucket) *Summary {
	s := &Summary{
		TotalRows:      len(rows),
		TotalDays:      len(days),
		UnbalancedDays: []time.Time{},
		StatementTotal: decimal.Zero,
		ReportTotal:    decimal.Zero,
	}

	for _, row := range rows {
		switch row.Status {
		case models.MatchExact:
			s.ExactRows++
		case models.MatchSum:
			s.SumRows++
		}
	}
	s.MatchedRows = s.ExactRows + s.SumRows
	s.UnreconciledRows = s.TotalRows - s.MatchedRows
	if s.TotalRows > 0 {
		s.ReconciliationRate = float64(s.MatchedRows) / float64(s.TotalRows) * 100
	}

	for _, day := range days {
		s.StatementTotal = s.StatementTotal.Add(day.StatementTotal)
		s.ReportTotal = s.ReportTotal.Add(day.ReportTotal)
		if day.Status == models.DayBalanced {
			s.BalancedDays++
		} else {
			s.UnbalancedDays = append(s.UnbalancedDays, day.Date)
		}
	}
	s.Difference = s.StatementTotal.Sub(s.ReportTotal).Abs()

	return s
}
