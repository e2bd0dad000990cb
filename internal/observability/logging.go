// Package observability provides process-wide logging for the CLI and server.
//
// Components receive a *zap.Logger explicitly; only the CLI layer logs
// through the package-level CLILogger, which is initialized once at startup
// from configuration and defaults to a no-op logger so library consumers
// and tests stay quiet.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for CLI commands.
//
// Defaults to a no-op logger until InitCLILogger is called.
var CLILogger = zap.NewNop()

// InitCLILogger initializes CLILogger with the given level and output profile.
//
// Parameters:
//   - level: Log level name ("debug", "info", "warn", "error").
//     Unknown values fall back to "info".
//   - structured: When true, emit JSON records; otherwise a human-readable
//     console encoding.
//
// Output goes to stderr so stdout stays reserved for JSONL data records.
func InitCLILogger(level string, structured bool) {
	CLILogger = newLogger(level, structured)
}

// NewLogger builds a logger with the given level and profile without
// touching the package-level CLILogger. The server uses this to get a
// request-scoped logger from config.
//
// Profile values follow config conventions: "STRUCTURED" for JSON,
// anything else for console output.
func NewLogger(level, profile string) *zap.Logger {
	return newLogger(level, strings.EqualFold(profile, "STRUCTURED"))
}

// Sync flushes any buffered log entries. Safe to call on a no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}

func newLogger(level string, structured bool) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if structured {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), parseLevel(level))
	return zap.New(core)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
