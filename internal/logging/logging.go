// Package logging provides the structured application logger and the context
// keys identity and tracing flow through. Built on zerolog; emits JSON by
// default.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

// Context keys for values middleware stores on the request context.
const (
	TraceIDKey contextKey = "trace_id"
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
)

// Logger is a leveled structured logger. Deriving methods return copies, so a
// Logger is safe to share.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger for the named component. Level is one of
// debug|info|warn|error (empty means info); format is json or console.
func New(name, level, format string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if format == "console" || format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(lvl).With().Timestamp().Str("component", name).Logger()
	return &Logger{zl: zl}
}

// Default returns an info-level JSON logger.
func Default() *Logger {
	return New("proteinlens", "info", "json")
}

// NewWriter builds a logger against an arbitrary writer. Used by tests.
func NewWriter(name string, w io.Writer) *Logger {
	zl := zerolog.New(w).Level(zerolog.DebugLevel).With().Str("component", name).Logger()
	return &Logger{zl: zl}
}

// WithContext returns a logger carrying the trace ID, user ID, and role found
// on the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.zl.With()
	if traceID := GetTraceID(ctx); traceID != "" {
		zc = zc.Str("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		zc = zc.Str("user_id", userID)
	}
	if role := GetRole(ctx); role != "" {
		zc = zc.Str("role", role)
	}
	return &Logger{zl: zc.Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithField returns a logger with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with the fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zc := l.zl.With()
	for k, v := range fields {
		zc = zc.Interface(k, v)
	}
	return &Logger{zl: zc.Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// LogRequest records one completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.WithContext(ctx).zl.Info().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("http request")
}

// LogSecurityEvent records an auth or abuse signal worth auditing.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	ev := l.WithContext(ctx).zl.Warn().Str("security_event", event)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("security event")
}

// NewTraceID returns a 16-byte random ID in hex, the W3C trace-id width.
func NewTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b[:])
}

// WithTraceID stores the trace ID on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithUserID stores the authenticated user ID on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID reads the authenticated user ID from the context, or "".
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// GetRole reads the authenticated role from the context, or "".
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
