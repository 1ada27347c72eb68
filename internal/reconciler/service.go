package reconciler

import (
	"context"
	"fmt"
	"time"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/google/uuid"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	Matching         *matcher.Config          `json:"matching"`
	Aggregation      *AggregatorConfig        `json:"aggregation"`
	StatementMapping *parsers.StatementMapping `json:"statement_mapping"`
	ReportMapping    *parsers.ReportMapping    `json:"report_mapping"`

	// Account keeps only report rows of this account when set
	Account string `json:"account,omitempty"`

	Parallelism int `json:"parallelism"`
	MaxErrors   int `json:"max_errors"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:         matcher.DefaultConfig(),
		Aggregation:      DefaultAggregatorConfig(),
		StatementMapping: parsers.DefaultStatementMapping(),
		ReportMapping:    parsers.DefaultReportMapping(),
		Parallelism:      1,
		MaxErrors:        parsers.DefaultMaxErrors,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if c.StatementMapping == nil || c.ReportMapping == nil {
		return fmt.Errorf("statement and report column mappings are required")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative, got %d", c.Parallelism)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", c.MaxErrors)
	}
	return nil
}

// ReconciliationRequest names the two files of one run
type ReconciliationRequest struct {
	StatementFile string `json:"statement_file"`
	ReportFile    string `json:"report_file"`
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if r.StatementFile == "" {
		return fmt.Errorf("statement file path is required")
	}
	if r.ReportFile == "" {
		return fmt.Errorf("report file path is required")
	}
	return nil
}

// ReconciliationResult contains the complete results of one run
type ReconciliationResult struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	StatementFile string        `json:"statement_file,omitempty"`
	ReportFile    string        `json:"report_file,omitempty"`

	Rows     []*models.ResultRow  `json:"rows"`
	Groups   []*models.MatchGroup `json:"-"`
	Residues []*models.Residue    `json:"-"`
	Days     []*models.DayBucket  `json:"days"`
	Summary  *Summary             `json:"summary"`

	EngineStats    *EngineStats        `json:"engine_stats"`
	StatementStats *parsers.ParseStats `json:"statement_stats,omitempty"`
	ReportStats    *parsers.ParseStats `json:"report_stats,omitempty"`
}

// ReconciliationService runs a reconciliation from input files to day summaries
type ReconciliationService struct {
	config          *Config
	statementLoader *parsers.StatementLoader
	reportLoader    *parsers.ReportLoader
	engine          *Engine
	aggregator      *DailyAggregator
	logger          logger.Logger
}

// NewReconciliationService wires the loaders, the engine and the aggregator.
// Engine options are applied after the configured parallelism.
func NewReconciliationService(config *Config, opts ...EngineOption) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation_service", config.Account, err)
	}

	log := logger.GetGlobalLogger().WithComponent("reconciliation_service")

	loaderOpts := []parsers.LoaderOption{
		parsers.WithMaxErrors(config.MaxErrors),
		parsers.WithAccount(config.Account),
	}

	statementLoader, err := parsers.NewStatementLoader(config.StatementMapping, loaderOpts...)
	if err != nil {
		return nil, err
	}

	reportLoader, err := parsers.NewReportLoader(config.ReportMapping, loaderOpts...)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]EngineOption{WithParallelism(config.Parallelism)}, opts...)
	engine, err := NewEngine(config.Matching, engineOpts...)
	if err != nil {
		return nil, err
	}

	// day balance uses the matching tolerance
	aggregation := DefaultAggregatorConfig()
	if config.Aggregation != nil {
		aggregation.BalanceMarker = config.Aggregation.BalanceMarker
	}
	aggregation.Epsilon = config.Matching.Epsilon

	log.WithFields(logger.Fields{
		"matching":    config.Matching.String(),
		"parallelism": config.Parallelism,
		"account":     config.Account,
	}).Debug("Created reconciliation service")

	return &ReconciliationService{
		config:          config,
		statementLoader: statementLoader,
		reportLoader:    reportLoader,
		engine:          engine,
		aggregator:      NewDailyAggregator(aggregation),
		logger:          log,
	}, nil
}

// ProcessReconciliation loads both files and reconciles them
func (rs *ReconciliationService) ProcessReconciliation(ctx context.Context, request *ReconciliationRequest) (*ReconciliationResult, error) {
	if err := request.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_request", request, err)
	}

	op := logger.NewOperationLogger("reconciliation", rs.logger).WithFields(logger.Fields{
		"statement_file": request.StatementFile,
		"report_file":    request.ReportFile,
	})

	op.Step("loading input files")
	var input *parsers.LoadedInput
	err := logger.TimedOperation("load input files", rs.logger, func() error {
		var loadErr error
		input, loadErr = parsers.LoadPair(ctx,
			rs.statementLoader, request.StatementFile,
			rs.reportLoader, request.ReportFile)
		return loadErr
	})
	if err != nil {
		return nil, err
	}

	for _, stats := range []*parsers.ParseStats{input.StatementStats, input.ReportStats} {
		if stats.HasErrors() {
			op.WithFields(logger.Fields{
				"file":    stats.File,
				"skipped": stats.RowsSkipped,
				"undated": stats.UndatedRecords,
				"sample":  stats.GetSampleErrors(3),
			}).Warning("input rows were skipped or kept without a date")
		}
	}

	op.Step("matching records")
	result, err := rs.ReconcileRecords(ctx, input.Statements, input.Reports)
	if err != nil {
		op.Error(err, "reconciliation failed")
		return nil, err
	}

	result.StatementFile = request.StatementFile
	result.ReportFile = request.ReportFile
	result.StatementStats = input.StatementStats
	result.ReportStats = input.ReportStats

	op.WithFields(logger.Fields{
		"run_id": result.RunID,
		"rate":   fmt.Sprintf("%.2f%%", result.Summary.ReconciliationRate),
	}).Success("reconciliation completed")

	return result, nil
}

// ReconcileRecords runs the engine over already loaded records and builds
// the day buckets and the summary
func (rs *ReconciliationService) ReconcileRecords(ctx context.Context, statements, reports []*models.Record) (*ReconciliationResult, error) {
	started := time.Now()

	engineResult, err := rs.engine.Reconcile(ctx, statements, reports)
	if err != nil {
		return nil, err
	}

	days := rs.aggregator.Aggregate(engineResult.Rows)

	result := &ReconciliationResult{
		RunID:       uuid.NewString(),
		StartedAt:   started,
		Rows:        engineResult.Rows,
		Groups:      engineResult.Groups,
		Residues:    engineResult.Residues,
		Days:        days,
		Summary:     Summarize(engineResult.Rows, days),
		EngineStats: engineResult.Stats,
	}
	result.Duration = time.Since(started)

	rs.logger.WithFields(logger.Fields{
		"run_id":          result.RunID,
		"rows":            result.Summary.TotalRows,
		"matched_rows":    result.Summary.MatchedRows,
		"days":            result.Summary.TotalDays,
		"unbalanced_days": len(result.Summary.UnbalancedDays),
		"duration":        result.Duration,
	}).Info("Reconciled records")

	return result, nil
}

// GetConfig returns the service configuration
func (rs *ReconciliationService) GetConfig() *Config {
	return rs.config
}
