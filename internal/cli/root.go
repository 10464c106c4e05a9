// Package cli implements the coinsync command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/config"
	"github.com/mrz1836/coinsync/internal/output"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Command group IDs.
const (
	groupSync   = "sync"
	groupSend   = "send"
	groupConfig = "config"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	serverName   string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter

	enrichOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "coinsync",
	Short: "Keep wallet balances, fees and history in sync with a node",
	Long: `coinsync talks to a wallet node over JSON-RPC and keeps account balances,
fee quotes and transaction history up to date.

Balance refreshes are debounced per account; a cached balance is shown at
once and replaced when the node answers. Sends are validated, summarized
and only submitted after an explicit confirmation.`,
	Example: `  coinsync balance show
  coinsync balance watch --listen 127.0.0.1:9100
  coinsync history main
  coinsync send --from main --to addr1... --amount 1.50`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	enrichOnce.Do(func() {
		walkCommands(rootCmd, enrichParentLong)
	})

	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(rootCmd.ErrOrStderr(), err, format)
		return err
	}
	return nil
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	return coinerr.ExitCode(err)
}

// resolveHome picks the data directory: --home, then COINSYNC_HOME, then
// ~/.coinsync.
func resolveHome() string {
	if homeDir != "" {
		return homeDir
	}
	if home := os.Getenv(config.EnvHome); home != "" {
		return home
	}
	return config.DefaultHome()
}

// initGlobals builds cfg, logger and formatter for the command about to run.
// Precedence is flags, then environment, then the config file, then defaults.
func initGlobals(cmd *cobra.Command) error {
	c, err := loadConfig(resolveHome())
	if err != nil {
		return err
	}
	applyFlags(c)
	if err = c.Validate(); err != nil {
		return err
	}

	cfg = c
	logger = openLogger(c)

	w := cmd.OutOrStdout()
	format := output.DetectFormat(w, output.ParseFormat(c.Output.DefaultFormat))
	formatter = output.NewFormatter(format, w).WithErrorWriter(cmd.ErrOrStderr())

	// Drop the CommandContext attached by an earlier run.
	cmd.SetContext(cmd.Root().Context())
	return nil
}

// loadConfig reads <home>/config.yaml, or starts from defaults when there is
// none, and applies the environment.
func loadConfig(home string) (*config.Config, error) {
	c, err := config.Load(config.Path(home))
	switch {
	case coinerr.Is(err, coinerr.ErrConfigNotFound):
		c = config.Defaults()
	case err != nil:
		return nil, err
	}
	c.Home = home
	config.ApplyEnvironment(c)
	return c, nil
}

func applyFlags(c *config.Config) {
	if homeDir != "" {
		c.Home = homeDir
	}
	if verbose {
		c.Output.Verbose = true
		c.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		c.Output.DefaultFormat = outputFormat
	}
}

// openLogger falls back to a silent logger when the log file cannot be
// opened; logging never blocks a command.
func openLogger(c *config.Config) *config.Logger {
	l, err := config.NewLogger(config.ParseLogLevel(c.Logging.Level), c.ResolvePath(c.Logging.File))
	if err != nil {
		return config.NullLogger()
	}
	return l
}

func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupSync, Title: "Sync Operations:"},
		&cobra.Group{ID: groupSend, Title: "Sending:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)
	rootCmd.SetCompletionCommandGroupID(groupConfig)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "coinsync data directory (default: ~/.coinsync)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().StringVar(&serverName, "server", "", "node server name from the servers list")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("server", completeServerNames)
	_ = rootCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		[]string{"text", "json", "auto"}, cobra.ShellCompDirectiveNoFileComp))
}
