// Package cmd implements the ulftrack command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/armlab/ulftrack/internal/config"
	"github.com/armlab/ulftrack/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "ulftrack",
	Short: "Bookkeeping for body-worn sensor processing pipelines",
	Long: `ulftrack tracks the processing state of a longitudinal sensor study.

It inventories each subject's sensor exports, resolves overlapping
recordings, derives the full set of expected analysis artifacts for the
configured parameters, and records every run in a durable journal. The
actual measure computation is done elsewhere; ulftrack decides what
needs building.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

// versionInfo holds build metadata injected at link time via main.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// status API.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagLogLevel   string
	flagLogProfile string
)

// appConfig is the runtime configuration loaded before every command.
var appConfig *config.Config

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogProfile, "log-profile", "", "Log output profile (STRUCTURED|CONSOLE)")

	rootCmd.AddCommand(versionCmd)
}

// initRuntime loads configuration and initializes the CLI logger before
// any command runs.
func initRuntime(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	logging := map[string]any{}
	if flagLogLevel != "" {
		logging["level"] = flagLogLevel
	}
	if flagLogProfile != "" {
		logging["profile"] = flagLogProfile
	}
	if len(logging) > 0 {
		overrides["logging"] = logging
	}

	var err error
	if len(overrides) > 0 {
		appConfig, err = config.Load(cmd.Context(), overrides)
	} else {
		appConfig, err = config.Load(cmd.Context())
	}
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	observability.InitCLILogger(appConfig.Logging.Level,
		strings.EqualFold(appConfig.Logging.Profile, "STRUCTURED"))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ulftrack %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

var exitCodePattern = regexp.MustCompile(`\(exit code (\d+)\)$`)

// exitCodeFromError extracts the exit code embedded by exitError,
// defaulting to 1 for plain errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	if m := exitCodePattern.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 1
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFromError(err)
	}
	return 0
}
