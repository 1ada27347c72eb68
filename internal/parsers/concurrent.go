package parsers

import (
	"context"

	"statement-reconciler/internal/models"

	"github.com/sourcegraph/conc/pool"
)

// LoadedInput is the outcome of loading the statement and report together
type LoadedInput struct {
	Statements     []*models.Record
	Reports        []*models.Record
	StatementStats *ParseStats
	ReportStats    *ParseStats
}

// LoadPair loads the statement and the report concurrently. The first
// failure cancels the other load and is returned.
func LoadPair(
	ctx context.Context,
	statements *StatementLoader, statementPath string,
	reports *ReportLoader, reportPath string,
) (*LoadedInput, error) {
	result := &LoadedInput{}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	p.Go(func(ctx context.Context) error {
		records, stats, err := statements.Load(ctx, statementPath)
		result.Statements, result.StatementStats = records, stats
		return err
	})

	p.Go(func(ctx context.Context) error {
		records, stats, err := reports.Load(ctx, reportPath)
		result.Reports, result.ReportStats = records, stats
		return err
	})

	if err := p.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
