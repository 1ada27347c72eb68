// Package reconciler runs the matchers over a statement feed and an
// accounting report and folds the outcome into per-day summaries.
//
// The Engine walks the statement records in input order and, for each record
// not yet placed in a group, tries the exact, combination and reverse
// matchers in that order. Whatever is left becomes an unreconciled residue.
// Since every matcher is scoped to one calendar day, days are independent and
// may be processed concurrently; the merged output is identical to a
// sequential run.
//
// Example usage:
//
//	engine, err := reconciler.NewEngine(matcher.DefaultConfig(),
//		reconciler.WithParallelism(4))
//	if err != nil {
//		return err
//	}
//
//	result, err := engine.Reconcile(ctx, statements, reports)
//	days := reconciler.NewDailyAggregator(nil).Aggregate(result.Rows)
package reconciler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// ProgressFunc receives the number of processed statement records and the total.
// It may be called from several goroutines, but never concurrently.
type ProgressFunc func(processed, total int)

// DefaultProgressInterval is the number of statement records between progress calls
const DefaultProgressInterval = 100

// Engine partitions statement and report records into match groups and residues
type Engine struct {
	config      *matcher.Config
	exact       *matcher.ExactMatcher
	combination *matcher.CombinationMatcher
	reverse     *matcher.ReverseCombinationMatcher

	parallelism      int
	progress         ProgressFunc
	progressInterval int
	logger           logger.Logger
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithParallelism sets how many calendar days are matched concurrently.
// Values below 2 run every day on the calling goroutine.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithProgress registers a callback invoked every interval statement records
// and once at completion
func WithProgress(fn ProgressFunc, interval int) EngineOption {
	return func(e *Engine) {
		e.progress = fn
		if interval > 0 {
			e.progressInterval = interval
		}
	}
}

// WithLogger replaces the engine logger
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent("engine")
		}
	}
}

// NewEngine creates an engine; a nil config uses matcher.DefaultConfig
func NewEngine(config *matcher.Config, opts ...EngineOption) (*Engine, error) {
	if config == nil {
		config = matcher.DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matcher", config.String(), err)
	}

	e := &Engine{
		config:           config.Clone(),
		parallelism:      1,
		progressInterval: DefaultProgressInterval,
		logger:           logger.GetGlobalLogger().WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.exact = matcher.NewExactMatcher(e.config)
	e.combination = matcher.NewCombinationMatcher(e.config)
	e.reverse = matcher.NewReverseCombinationMatcher(e.config)

	return e, nil
}

// GetConfiguration returns a copy of the matcher configuration
func (e *Engine) GetConfiguration() *matcher.Config {
	return e.config.Clone()
}

// Result is the complete partition of one reconciliation run
type Result struct {
	// Rows is the flat output: match rows in statement order, then statement
	// residues in input order, then report residues in pool order
	Rows []*models.ResultRow `json:"rows"`

	// Groups are the match groups in the order they were formed
	Groups []*models.MatchGroup `json:"groups"`

	// Residues are the unpaired records, statement side first
	Residues []*models.Residue `json:"residues"`

	Stats *EngineStats `json:"stats"`
}

// EngineStats counts what the engine did during one run
type EngineStats struct {
	StatementRecords  int           `json:"statement_records"`
	ReportRecords     int           `json:"report_records"`
	Days              int           `json:"days"`
	UndatedStatements int           `json:"undated_statements"`
	UndatedReports    int           `json:"undated_reports"`
	ExactMatches      int           `json:"exact_matches"`
	CombinationGroups int           `json:"combination_groups"`
	ReverseGroups     int           `json:"reverse_groups"`
	BudgetExhausted   int           `json:"budget_exhausted"`
	Duration          time.Duration `json:"duration"`
}

// emission is one match group and its rows, keyed by the statement record
// whose turn in the main loop produced it
type emission struct {
	anchor int
	group  *models.MatchGroup
	rows   []*models.ResultRow
	via    matchVia
}

type matchVia int

const (
	viaExact matchVia = iota
	viaCombination
	viaReverse
)

// dayOutcome is what matching one calendar day produced
type dayOutcome struct {
	emissions         []emission
	matchedStatements []int
	consumedReports   []int
	budgetExhausted   int
}

// progressCounter serializes progress callbacks across day workers
type progressCounter struct {
	fn        ProgressFunc
	interval  int
	total     int
	processed atomic.Int64
	mu        sync.Mutex
}

func (p *progressCounter) add(n int) {
	if p.fn == nil || n == 0 {
		return
	}
	after := p.processed.Add(int64(n))
	before := after - int64(n)
	if before/int64(p.interval) != after/int64(p.interval) {
		p.mu.Lock()
		p.fn(int(after), p.total)
		p.mu.Unlock()
	}
}

func (p *progressCounter) finish() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	p.fn(p.total, p.total)
	p.mu.Unlock()
}

// Reconcile partitions statements and reports into match groups and residues.
// The input slices are not modified. The only errors are a cancelled context
// and an engine built with an invalid configuration.
func (e *Engine) Reconcile(ctx context.Context, statements, reports []*models.Record) (*Result, error) {
	start := time.Now()

	stmtIndex := matcher.NewDayIndex(statements)
	reportIndex := matcher.NewDayIndex(reports)
	days := stmtIndex.Keys()

	e.logger.WithFields(logger.Fields{
		"statements":  len(statements),
		"reports":     len(reports),
		"days":        len(days),
		"parallelism": e.parallelism,
	}).Info("Starting reconciliation")

	progress := &progressCounter{
		fn:       e.progress,
		interval: e.progressInterval,
		total:    len(statements),
	}

	outcomes := make([]*dayOutcome, len(days))
	run := func(ctx context.Context, i int) error {
		day := days[i]
		outcome, err := e.matchDay(ctx, day, statements, stmtIndex.GetByDay(day), reports, reportIndex.GetByDay(day), progress)
		if err != nil {
			return err
		}
		outcomes[i] = outcome
		return nil
	}

	if e.parallelism > 1 && len(days) > 1 {
		p := pool.New().
			WithContext(ctx).
			WithCancelOnError().
			WithFirstError().
			WithMaxGoroutines(e.parallelism)
		for i := range days {
			i := i
			p.Go(func(ctx context.Context) error {
				return run(ctx, i)
			})
		}
		if err := p.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range days {
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	progress.add(len(stmtIndex.Undated))
	result := e.merge(statements, reports, outcomes)
	progress.finish()

	stats := result.Stats
	stats.StatementRecords = len(statements)
	stats.ReportRecords = len(reports)
	stats.Days = len(days)
	stats.UndatedStatements = len(stmtIndex.Undated)
	stats.UndatedReports = len(reportIndex.Undated)
	stats.Duration = time.Since(start)

	e.logger.WithFields(logger.Fields{
		"groups":           len(result.Groups),
		"residues":         len(result.Residues),
		"exact":            stats.ExactMatches,
		"combination":      stats.CombinationGroups,
		"reverse":          stats.ReverseGroups,
		"budget_exhausted": stats.BudgetExhausted,
		"duration":         stats.Duration.String(),
	}).Info("Reconciliation completed")

	return result, nil
}

// matchDay runs the main loop over the statement records of one day.
// stmtPos and reportPos are global positions in input order.
func (e *Engine) matchDay(
	ctx context.Context,
	day string,
	statements []*models.Record,
	stmtPos []int,
	reports []*models.Record,
	reportPos []int,
	progress *progressCounter,
) (*dayOutcome, error) {
	stmts := matcher.NewStatementSet(matcher.Pick(statements, stmtPos))
	reportPool := matcher.NewReportPool(matcher.Pick(reports, reportPos))
	outcome := &dayOutcome{}

	log := e.logger
	if log.IsDebugEnabled() {
		log = log.WithField("day", day)
	}

	for i := 0; i < stmts.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.ReconciliationError(errors.CodeCancelled, "matching "+day, err)
		}

		if !stmts.IsMatched(i) {
			if em, exhausted := e.matchOne(i, stmts, reportPool); em != nil {
				em.anchor = stmtPos[i]
				outcome.emissions = append(outcome.emissions, *em)
			} else if exhausted > 0 {
				outcome.budgetExhausted += exhausted
				log.WithFields(logger.Fields{
					"code":      errors.CodeSearchBudgetExceeded,
					"statement": stmts.Record(i).String(),
				}).Debug("Subset search budget exceeded, statement left unreconciled")
			}
		}

		progress.add(1)
	}

	for i := 0; i < stmts.Len(); i++ {
		if stmts.IsMatched(i) {
			outcome.matchedStatements = append(outcome.matchedStatements, stmtPos[i])
		}
	}
	for i := 0; i < reportPool.Size(); i++ {
		if !reportPool.IsAvailable(i) {
			outcome.consumedReports = append(outcome.consumedReports, reportPos[i])
		}
	}

	return outcome, nil
}

// matchOne tries the three matchers for statement i of the day. On success it
// marks i matched and returns the emission. The int result counts the
// matchers that gave up on their subset budget.
func (e *Engine) matchOne(i int, stmts *matcher.StatementSet, reportPool *matcher.ReportPool) (*emission, int) {
	stmt := stmts.Record(i)
	exhausted := 0

	if report := e.exact.Match(stmt, reportPool); report != nil {
		stmts.MarkMatched(i)
		return &emission{
			via: viaExact,
			group: &models.MatchGroup{
				Kind:       models.MatchExact,
				Statements: []*models.Record{stmt},
				Reports:    []*models.Record{report},
			},
			rows: []*models.ResultRow{
				{Statement: stmt, Report: report, Status: models.MatchExact},
			},
		}, 0
	}

	members, out := e.combination.Match(stmt, reportPool)
	if out {
		exhausted++
	}
	if members != nil {
		stmts.MarkMatched(i)
		rows := make([]*models.ResultRow, len(members))
		for k, report := range members {
			rows[k] = &models.ResultRow{Statement: stmt, Report: report, Status: models.MatchSum}
		}
		return &emission{
			via: viaCombination,
			group: &models.MatchGroup{
				Kind:       models.MatchSum,
				Statements: []*models.Record{stmt},
				Reports:    members,
			},
			rows: rows,
		}, exhausted
	}

	rm, out := e.reverse.Match(i, stmts, reportPool)
	if out {
		exhausted++
	}
	if rm != nil {
		stmts.MarkMatched(i)
		members := make([]*models.Record, len(rm.Members))
		for k, pos := range rm.Members {
			members[k] = stmts.Record(pos)
		}

		// the other members are emitted before the anchor
		rows := make([]*models.ResultRow, 0, len(members))
		for _, pos := range rm.Others() {
			rows = append(rows, &models.ResultRow{Statement: stmts.Record(pos), Report: rm.Report, Status: models.MatchSum})
		}
		rows = append(rows, &models.ResultRow{Statement: stmt, Report: rm.Report, Status: models.MatchSum})

		return &emission{
			via: viaReverse,
			group: &models.MatchGroup{
				Kind:       models.MatchSum,
				Statements: members,
				Reports:    []*models.Record{rm.Report},
			},
			rows: rows,
		}, exhausted
	}

	return nil, exhausted
}

// merge orders the per-day emissions by anchor position and appends the
// residues of both sides
func (e *Engine) merge(statements, reports []*models.Record, outcomes []*dayOutcome) *Result {
	stmtMatched := make([]bool, len(statements))
	reportConsumed := make([]bool, len(reports))
	stats := &EngineStats{}

	var emissions []emission
	for _, outcome := range outcomes {
		emissions = append(emissions, outcome.emissions...)
		for _, pos := range outcome.matchedStatements {
			stmtMatched[pos] = true
		}
		for _, pos := range outcome.consumedReports {
			reportConsumed[pos] = true
		}
		stats.BudgetExhausted += outcome.budgetExhausted
	}

	// anchors are unique, so this reproduces the sequential emission order
	sort.Slice(emissions, func(a, b int) bool {
		return emissions[a].anchor < emissions[b].anchor
	})

	result := &Result{
		Groups: make([]*models.MatchGroup, 0, len(emissions)),
		Stats:  stats,
	}

	for _, em := range emissions {
		result.Groups = append(result.Groups, em.group)
		result.Rows = append(result.Rows, em.rows...)

		switch em.via {
		case viaExact:
			stats.ExactMatches++
		case viaCombination:
			stats.CombinationGroups++
		case viaReverse:
			stats.ReverseGroups++
		}
	}

	for i, r := range statements {
		if stmtMatched[i] {
			continue
		}
		result.Residues = append(result.Residues, &models.Residue{Side: models.SideStatement, Record: r})
		result.Rows = append(result.Rows, &models.ResultRow{Statement: r, Status: models.MatchUnreconciled})
	}
	for i, r := range reports {
		if reportConsumed[i] {
			continue
		}
		result.Residues = append(result.Residues, &models.Residue{Side: models.SideReport, Record: r})
		result.Rows = append(result.Rows, &models.ResultRow{Report: r, Status: models.MatchUnreconciled})
	}

	return result
}
