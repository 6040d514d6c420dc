package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sandwichfarm/herdwatch/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return newLogger(cfg, os.Stdout, func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.Format(time.RFC3339))
			}
		}
		return a
	})
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	return newLogger(cfg, w, nil)
}

func newLogger(cfg *config.Logging, w io.Writer, replace func([]string, slog.Attr) slog.Attr) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replace,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// Discard returns a logger that drops everything, for tests and tools
func Discard() *Logger {
	return NewLoggerWithWriter(&config.Logging{Level: "error"}, io.Discard)
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogSubscription logs a subscription opening or closing
func (l *Logger) LogSubscription(scope string, rootID string, open bool, err error) {
	switch {
	case err != nil:
		l.Warn("subscription failed",
			"scope", scope,
			"root_id", rootID,
			"error", err)
	case open:
		l.Info("subscription opened",
			"scope", scope,
			"root_id", rootID)
	default:
		l.Info("subscription closed",
			"scope", scope,
			"root_id", rootID)
	}
}

// LogRootNote logs discovery of a new root note
func (l *Logger) LogRootNote(id string, createdAt int64) {
	l.Info("new root note",
		"root_id", id,
		"created_at", createdAt)
}

// LogResubscribe logs a root resubscription after backoff
func (l *Logger) LogResubscribe(backoff time.Duration, since int64) {
	l.Info("resubscribing to root feed",
		"backoff_ms", backoff.Milliseconds(),
		"since", since)
}

// LogFollowUp logs a classified follow-up event
func (l *Logger) LogFollowUp(eventID string, kind int, author string, amount float64) {
	l.Info("follow-up classified",
		"event_id", eventID,
		"kind", kind,
		"pubkey", author,
		"amount_sats", amount)
}

// LogSkip logs a policy skip; these are not errors
func (l *Logger) LogSkip(reason string, author string) {
	l.Debug("follow-up skipped",
		"reason", reason,
		"pubkey", author)
}

// LogRecord logs a newly appended attribution record
func (l *Logger) LogRecord(author string, kind int, payout float64, batchSize int) {
	l.Info("attribution recorded",
		"pubkey", author,
		"kind", kind,
		"payouts", payout,
		"batch_size", batchSize)
}

// LogDelivery logs a webhook delivery attempt
func (l *Logger) LogDelivery(url string, records int, duration time.Duration, err error) {
	if err != nil {
		l.Error("delivery failed",
			"url", url,
			"records", records,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Info("delivery succeeded",
			"url", url,
			"records", records,
			"duration_ms", duration.Milliseconds())
	}
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string, config map[string]interface{}) {
	l.Info("herdwatch starting",
		"version", version,
		"commit", commit,
		"config", config)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("herdwatch shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}
