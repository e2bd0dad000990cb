package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/armlab/ulftrack/internal/observability"
	"github.com/armlab/ulftrack/internal/server"
	"github.com/armlab/ulftrack/pkg/manifest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only status API over the study journal",
	Long: `Start an HTTP server exposing the study's journal state:
session history and the latest committed plan. The server never
mutates the journal.

Endpoints:
  GET /health
  GET /version
  GET /api/v1/sessions
  GET /api/v1/sessions/{key}
  GET /api/v1/plan

Example:
  ulftrack serve --study study.yaml
  ulftrack serve --study study.yaml --port 9090`,
	RunE: runServe,
}

var (
	serveStudyPath string
	serveHost      string
	servePort      int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveStudyPath, "study", "s", "", "Path to study manifest (required)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")

	_ = serveCmd.MarkFlagRequired("study")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(serveStudyPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid study manifest", err)
	}

	host := appConfig.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := appConfig.Server.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(host, port,
		server.WithLogger(observability.CLILogger),
		server.WithJournal(journalPath(m)),
		server.WithVersionInfo(server.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(
			appConfig.Server.ReadTimeout,
			appConfig.Server.WriteTimeout,
			appConfig.Server.IdleTimeout,
			appConfig.Server.ShutdownTimeout,
		),
	)

	observability.CLILogger.Info("Starting status API",
		zap.String("addr", srv.Addr()),
		zap.String("journal", journalPath(m)))

	if err := srv.ListenAndServe(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Status API failed", err)
	}
	return nil
}
