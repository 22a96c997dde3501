package cli

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/flash"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "vector",
	Short: "Live PCP dashboard engine",
	Long: `vector polls a Performance Co-Pilot pmwebapi endpoint on a fixed interval,
keeps a rolling window of every subscribed metric, and serves the series
over a small HTTP API.

Start with:
  vector config init
  vector host set perf01
  vector serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			os.Setenv(logger.DebugEnv, "1")
		}
		if noColor || os.Getenv("NO_COLOR") != "" {
			flash.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .vector.yaml, then ~/.config/vector/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if isUnknownCommandError(err) {
			fmt.Fprintf(os.Stderr, "✗ Unknown command '%s'\n\n  Run 'vector --help' to see what's available.\n", extractUnknownCommand(err))
			os.Exit(2)
		}
		fmt.Fprint(os.Stderr, formatError(err))
		os.Exit(exitCode(err))
	}
}

// loadConfig finds, loads and validates config, applying output settings.
// It returns the config path used, empty when running on defaults.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	applyColorMode(cfg.Output.Color)
	return cfg, path, nil
}

func applyColorMode(mode string) {
	switch mode {
	case "never":
		flash.DisableColors()
	case "auto":
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			flash.DisableColors()
		}
	}
}

func formatError(err error) string {
	msg := err.Error()
	if errors.CodeOf(err) == "" {
		msg = "✗ " + msg
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return msg
}

// exitCode maps error categories to process exit codes.
func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrConfig:
		return 2
	case errors.ErrSSH, errors.ErrAcquire, errors.ErrFetch:
		return 3
	default:
		return 1
	}
}

var unknownCommandRe = regexp.MustCompile(`unknown command "([^"]+)"`)

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

func extractUnknownCommand(err error) string {
	if m := unknownCommandRe.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return strings.TrimSpace(strings.TrimPrefix(err.Error(), "unknown flag:"))
}
