// Package log provides structured logging for hopper.
package log

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance.
	Logger zerolog.Logger
)

// Level represents a log severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level Level

	// JSONOutput writes structured JSON to the console instead of the
	// human-readable console writer.
	JSONOutput bool

	// Output overrides the console sink (defaults to os.Stdout).
	Output io.Writer

	// LogDir, when non-empty, adds a rotating file sink alongside the
	// console sink. Rotation is handled by lumberjack and is by size
	// (50 MB); rotated files are pruned after 14 days. There is no
	// rotation on a fixed time schedule.
	LogDir string
}

// Init initializes the global logger. It is safe to call once at startup;
// subsequent calls replace the global logger outright (no partial merge).
func Init(cfg Config) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	console := cfg.Output
	if console == nil {
		console = os.Stdout
	}
	if !cfg.JSONOutput {
		console = zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{console}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(cfg.LogDir, "hopper.log"),
				MaxSize:    50, // megabytes
				MaxBackups: 7,
				MaxAge:     14, // days
				Compress:   true,
			})
		}
	}

	out := io.MultiWriter(writers...)
	Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case InfoLevel, "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a child logger tagged with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTaskID returns a child logger tagged with a task_id field.
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

func init() {
	// A usable default before Init() runs, so library code that logs during
	// package-level construction (tests, early config errors) doesn't panic
	// on a zero-value Logger.
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
