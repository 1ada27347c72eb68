// Command fixturegen writes a generated statement and report pair, plus an
// expected.json describing how it was built, for manual and load testing.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"statement-reconciler/internal/fixtures"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := fixtures.DefaultConfig()
	var (
		outputDir string
		start     string
		layout    string
	)

	rootCmd := &cobra.Command{
		Use:   "fixturegen",
		Short: "Generate statement and report CSV files with known matches",
		Example: `  fixturegen --output-dir generated --days 30 --seed 42
  fixturegen --output-dir generated --layout split --orphans 0`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse("2006-01-02", start)
			if err != nil {
				return fmt.Errorf("invalid --start %q: %w", start, err)
			}
			config.Start = day

			reportLayout, err := parsers.ParseReportLayout(layout)
			if err != nil {
				return err
			}
			config.Layout = reportLayout

			return generate(config, outputDir)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&outputDir, "output-dir", "generated", "directory for the generated files")
	flags.Int64Var(&config.Seed, "seed", time.Now().UnixNano(), "random seed for reproducible output")
	flags.StringVar(&start, "start", config.Start.Format("2006-01-02"), "first day (YYYY-MM-DD)")
	flags.IntVar(&config.Days, "days", config.Days, "number of days")
	flags.IntVar(&config.ExactPerDay, "exact", config.ExactPerDay, "exact pairs per day")
	flags.IntVar(&config.SplitsPerDay, "splits", config.SplitsPerDay, "statement lines split over 2-4 report entries, per day")
	flags.IntVar(&config.GroupsPerDay, "groups", config.GroupsPerDay, "groups of 2-5 statement lines with one report entry, per day")
	flags.IntVar(&config.OrphansPerDay, "orphans", config.OrphansPerDay, "statement lines without a counterpart, per orphan day")
	flags.IntVar(&config.OrphanEvery, "orphan-every", config.OrphanEvery, "put orphans on every n-th day")
	flags.BoolVar(&config.BalanceLines, "balance-lines", config.BalanceLines, "add a SALDO ANTERIOR line to every day")
	flags.StringVar(&layout, "layout", string(config.Layout), "report layout: nature or split")

	return rootCmd
}

func generate(config *fixtures.Config, outputDir string) error {
	log := logger.GetGlobalLogger().WithComponent("fixturegen")

	scenario, err := fixtures.Generate(config)
	if err != nil {
		return err
	}

	statementPath, reportPath, err := scenario.WriteFiles(outputDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(scenario.Expected, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode expectation: %w", err)
	}
	expectedPath := filepath.Join(outputDir, "expected.json")
	if err := os.WriteFile(expectedPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", expectedPath, err)
	}

	log.WithFields(logger.Fields{
		"statement":       statementPath,
		"report":          reportPath,
		"statement_lines": scenario.Expected.StatementLines,
		"report_entries":  scenario.Expected.ReportEntries,
		"seed":            config.Seed,
	}).Info("Generated scenario")

	return nil
}
