package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
)

// Logger wraps slog.Logger with service-wide default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output destination (stdout, stderr, or a daily-rotated file)
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//
// An error is returned only when file output is requested and the log
// directory or rotation pattern cannot be set up.
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	output, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	return newWithWriter(output, cfg, version), nil
}

func newWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "erp-auth"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// openOutput resolves the configured output to a writer.
func openOutput(cfg config.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		return openRotatingFile(cfg.File)
	default:
		return os.Stdout, nil
	}
}

// openRotatingFile writes to path.YYYYMMDD, keeping path itself as a symlink
// to the current day's file.
func openRotatingFile(cfg config.FileLoggingConfig) (io.Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("logging.file.path is required for file output")
	}

	maxAge := time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	w, err := rotatelogs.New(
		cfg.Path+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.Path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("opening rotating log file: %w", err)
	}
	return w, nil
}

// parseLevel converts a string log level to slog.Level.
// Unrecognised values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	authLogger := logger.With("component", "auth")
//	authLogger.Warn("permission denied") // Includes component=auth
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a stdout JSON logger for use before configuration is loaded.
func Default() *Logger {
	return newWithWriter(os.Stdout, config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that drops every record. Intended for tests.
func Discard() *Logger {
	return newWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}
