package logger_i

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/akolanti/ProposalAPI/internal/config"
)

type Logger struct {
	inner *slog.Logger
}

// Init installs the process-wide handler. CLI commands pass stderr so stdout stays
// clean for command output and the MCP stdio transport.
func Init(prod bool, out *os.File) {
	options := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if prod {
		options.Level = config.LOG_LEVEL_PROD
		handler = slog.NewJSONHandler(out, options)
	} else {
		handler = slog.NewTextHandler(out, options)
	}
	slog.SetDefault(slog.New(handler))
}

func NewLogger(section string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", section),
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.logWithSource(slog.LevelError, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.logWithSource(slog.LevelWarn, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.logWithSource(slog.LevelDebug, msg, args...)
}

func (l *Logger) logWithSource(level slog.Level, msg string, args ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	// Skip 3 levels: runtime.Callers, logWithSource, and the Error/Warn/Debug wrapper
	runtime.Callers(3, pcs[:])
	l.inner.Log(context.Background(), level, msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		inner: l.inner.With(args...),
	}
}

// ForContext attaches the trace id carried by ctx, if any.
func (l *Logger) ForContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if traceId, ok := ctx.Value(config.TRACE_ID_KEY).(string); ok && traceId != "" {
		return l.With("traceId", traceId)
	}
	return l
}
