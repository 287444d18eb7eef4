// Package logger wraps log/slog with the request, session, job and chunk
// attributes every framefarm process logs under.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/util"
)

type contextKey string

// Context keys read back by FromContext.
const (
	RequestIDKey contextKey = "request_id"
	SessionIDKey contextKey = "session_id"
	JobNameKey   contextKey = "job"
)

// contextAttrs lists the keys FromContext copies onto the logger, in order.
var contextAttrs = []contextKey{RequestIDKey, SessionIDKey, JobNameKey}

// Logger wraps slog.Logger with render-session aware helpers.
type Logger struct {
	*slog.Logger
}

type Config struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string
	// Format is "text" or "json", the default.
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   util.BoolEnv("LOG_SOURCE", false),
		ServiceName: util.Env("SERVICE_NAME", "framefarm"),
	}
}

// New builds a Logger whose timestamps are always UTC and whose records
// carry a "service" attribute when ServiceName is set.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(DefaultConfig())
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRequestID returns a new logger with the request ID attached.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(slog.String("request_id", requestID))
}

// WithSessionID returns a new logger with the render session ID attached.
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.with(slog.String("session_id", sessionID))
}

// WithJob returns a new logger with the job profile name attached.
func (l *Logger) WithJob(name string) *Logger {
	return l.with(slog.String("job", name))
}

// WithChunk returns a new logger describing a single chunk.
func (l *Logger) WithChunk(chunkID string, start, end int) *Logger {
	return l.with(slog.Group("chunk",
		slog.String("id", chunkID),
		slog.Int("start", start),
		slog.Int("end", end),
	))
}

// WithComponent returns a new logger with the component name attached.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(slog.String("component", component))
}

// WithError returns a new logger with the error and, for structured errors,
// its code and op attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(errorArgs(err)...)
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return l.with(attrs...)
}

// FromContext adds the request, session and job ids stored in ctx. With
// none present it returns l itself.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	var args []any
	for _, k := range contextAttrs {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			args = append(args, slog.String(string(k), v))
		}
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

// LogError logs err at error level with the caller's position and, for
// structured errors, the error code, op and fields.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, "source", slog.GroupValue(
			slog.String("file", file),
			slog.Int("line", line),
		))
	}
	args = append(args, errorArgs(err)...)
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs a fatal error and exits.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, errorArgs(err)...)
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func errorArgs(err error) []any {
	args := []any{"error", err.Error()}
	var fe *errors.Error
	if !errors.As(err, &fe) {
		return args
	}
	args = append(args, "error_code", string(fe.Code))
	if fe.Op != "" {
		args = append(args, "op", fe.Op)
	}
	if len(fe.Fields) > 0 {
		attrs := make([]any, 0, len(fe.Fields))
		for k, v := range fe.Fields {
			attrs = append(attrs, slog.Any(k, v))
		}
		args = append(args, slog.Group("error_fields", attrs...))
	}
	return args
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithSessionID adds a render session ID to the context.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// ContextWithJobName adds the job profile name to the context.
func ContextWithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, JobNameKey, name)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: "error"})
}

// parseLevel takes slog's level names, case-insensitively, plus "warning".
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
