package cmd

import (
	"fmt"
	"io"
	"os"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/profiles"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// NewRootCmd builds the command tree. Each tree has its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement and ERP report reconciliation tool",
		Long: `Reconciler matches the lines of a bank statement against the entries of an
ERP/accounting report of the same account. Lines are paired one to one, one
statement line to several report entries, or several statement lines to one
report entry, always on the same day and with the same sign. Each day is then
checked for balance.

Examples:
  reconciler reconcile --statement extrato.csv --report relatorio.csv
  reconciler reconcile -s extrato.csv -r relatorio.csv --profile erp-natureza --format csv -o result.csv
  reconciler profile list`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupCommand(v, cmd, cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolP("verbose", "v", false, "verbose output (debug logging)")
	flags.String("log-level", string(logger.InfoLevel), "log level: debug, info, warn, error")
	flags.String("log-format", string(logger.TextFormat), "log format: text or json")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.String("profiles-dir", profiles.DefaultDir, "directory of saved mapping profiles")

	rootCmd.AddCommand(newReconcileCmd(v))
	rootCmd.AddCommand(newProfileCmd(v))

	return rootCmd
}

// setupCommand binds the flags of the running command, reads the config file
// and installs the global logger
func setupCommand(v *viper.Viper, cmd *cobra.Command, cfgFile string) error {
	config.ConfigureEnv(v)
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "bind_flags", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check that the config file exists and is valid YAML, JSON or TOML")
		}
	}

	settings, err := config.Load(v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err)
	}

	log, err := logger.NewLogger(settings.LoggerConfig())
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", settings.LogLevel, err)
	}
	logger.SetGlobalLogger(log)

	if used := v.ConfigFileUsed(); used != "" {
		log.WithField("config", used).Debug("Using config file")
	}
	return nil
}

// Execute runs the CLI with the process arguments and returns the exit code
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes the command tree with args and reports any error to errOut
func Run(args []string, out, errOut io.Writer) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	err := rootCmd.Execute()

	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	return NewCLIErrorHandler(errOut, verbose).HandleError(err)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
