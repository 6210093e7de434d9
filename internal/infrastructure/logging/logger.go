package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
)

// Logger wraps zerolog.Logger with a key-value method set.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger from configuration.
//
// JSON is the default format; "console" (or "text") selects zerolog's
// human-readable writer. Every entry carries service and version fields.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newWithWriter(cfg, version, outputFor(cfg.Output))
}

func newWithWriter(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	switch strings.ToLower(cfg.Format) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "devicesync").
		Str("version", version).
		Logger()

	return &Logger{zl: zl}
}

func outputFor(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a string log level to a zerolog level.
// Unrecognised values fall back to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.emit(l.zl.Debug(), msg, args) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.emit(l.zl.Info(), msg, args) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.emit(l.zl.Warn(), msg, args) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.emit(l.zl.Error(), msg, args) }

func (l *Logger) emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	if len(args) > 0 {
		ev = ev.Fields(normalise(args))
	}
	ev.Msg(msg)
}

// normalise makes args an even-length key-value list with string keys.
func normalise(args []any) []any {
	out := make([]any, 0, len(args)+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if i+1 >= len(args) {
			out = append(out, "!BADKEY", args[i])
			break
		}
		out = append(out, key, args[i+1])
	}
	return out
}

// With returns a new Logger with additional default fields.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(normalise(args)).Logger()}
}

// Zerolog exposes the underlying logger for libraries that accept one.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}
