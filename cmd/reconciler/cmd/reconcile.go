package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/profiles"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

func newReconcileCmd(v *viper.Viper) *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a bank statement with an ERP report",
		Long: `Reconcile pairs bank statement lines with ERP report entries of the same
day and sign, then checks the balance of every day.

Matching runs in a fixed order for each statement line:
  1. exact: one report entry with the same amount
  2. combination: 2 to 4 report entries summing to the amount
  3. reverse: 2 to 5 statement lines summing to one report entry
Amounts are equal when they differ by less than --epsilon.

Statement lines whose description contains the balance marker ("saldo")
are matched but left out of the day totals. Lines without a valid date are
reported as unreconciled.

Examples:
  # Default column names (date, amount, description / nature)
  reconciler reconcile --statement extrato.csv --report relatorio.csv

  # Brazilian ERP export, only account 1.1.01
  reconciler reconcile -s extrato.csv -r relatorio.csv --profile erp-natureza \
    --report-account conta --account 1.1.01

  # Credit and debit columns, CSV output plus the daily balance
  reconciler reconcile -s extrato.csv -r relatorio.csv --report-layout split \
    --report-credit credito --report-debit debito \
    --format csv --output resultado.csv --days-output dias.csv

  # Large files
  reconciler reconcile -s extrato.csv -r relatorio.csv --parallelism 4 --progress-interval 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(v)
			if err != nil {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil, err)
			}
			return runReconcile(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	config.RegisterReconcileFlags(reconcileCmd.Flags())

	return reconcileCmd
}

func runReconcile(ctx context.Context, settings *config.Settings, stdout io.Writer) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	if err := settings.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil, err).
			WithSuggestion(fmt.Sprintf("fix the %d problem(s) listed below", len(multierr.Errors(err))))
	}

	var profile *profiles.Profile
	if settings.Profile != "" {
		store, err := profiles.NewStore(settings.ProfilesDir)
		if err != nil {
			return err
		}
		if profile, err = store.Get(settings.Profile); err != nil {
			return err
		}
		log.WithFields(logger.Fields{
			"profile": profile.Name,
			"builtin": profile.Builtin,
		}).Debug("Using mapping profile")
	}

	reconcilerConfig, err := settings.ReconcilerConfig(profile)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "mapping", settings.Profile, err)
	}

	var opts []reconciler.EngineOption
	var tracker *logger.ProgressTracker
	if settings.ProgressInterval > 0 {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "matching",
			LogInterval: time.Second,
		})
		opts = append(opts, reconciler.WithProgress(tracker.Observe, settings.ProgressInterval))
	}

	service, err := reconciler.NewReconciliationService(reconcilerConfig, opts...)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
		StatementFile: settings.StatementFile,
		ReportFile:    settings.ReportFile,
	})
	if tracker != nil {
		if err != nil {
			tracker.CompleteWithError(err)
		} else {
			tracker.Complete()
		}
	}
	if err != nil {
		return err
	}

	if err := writeReports(settings, result, stdout); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"rows":            result.Summary.TotalRows,
		"matched_rows":    result.Summary.MatchedRows,
		"rate":            fmt.Sprintf("%.2f%%", result.Summary.ReconciliationRate),
		"unbalanced_days": len(result.Summary.UnbalancedDays),
	}).Info("Reconciliation completed")

	return nil
}

func writeReports(settings *config.Settings, result *reconciler.ReconciliationResult, stdout io.Writer) error {
	reportConfig, err := settings.ReportConfig()
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", settings.Format, err)
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	if settings.Output != "" {
		err = generator.WriteReportFile(result, settings.Output)
	} else {
		err = generator.GenerateReportSafely(result, stdout)
	}
	if err != nil {
		return err
	}

	if settings.DaysOutput == "" {
		return nil
	}

	daysConfig, err := settings.DaysReportConfig()
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "days-output", settings.DaysOutput, err)
	}
	daysGenerator, err := reporter.NewSafeReportGenerator(daysConfig, nil)
	if err != nil {
		return err
	}
	return daysGenerator.WriteReportFile(result, settings.DaysOutput)
}
