// Package obslog provides structured logging for the Policy Service,
// modeled on the service layer's logging package: a thin wrapper over
// logrus with context-scoped fields and a handful of named helpers for
// the event categories the request loop actually emits.
package obslog

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	identityKey  contextKey = "identity"
)

// Logger wraps logrus.Logger with Policy Service-specific helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger with the given level ("debug".."error") and format
// ("json" or "text").
func New(service, level, format string) *Logger {
	base := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "text" {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{Logger: base, service: service}
}

// WithTraceID attaches a trace ID to a context for later retrieval by
// WithContext.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithIdentity attaches a badge-derived identity string to a context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// WithContext returns a log entry enriched with whatever trace/identity
// values are present on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(traceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(identityKey); v != nil {
		entry = entry.WithField("identity", v)
	}
	return entry
}

// LogSecurityEvent logs a security-relevant event (auth failure, policy
// rejection) at Warn level with a fixed "security" severity tag so log
// pipelines can filter on it cheaply.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, fields logrus.Fields) {
	entry := l.WithContext(ctx).WithField("event_type", eventType).WithField("severity", "security")
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn("security event")
}

// LogAudit logs a grant-store audit action at Info level.
func (l *Logger) LogAudit(ctx context.Context, action, clearName string, success bool) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":     action,
		"clear_name": clearName,
		"success":    success,
		"audit":      true,
	}).Info("audit event")
}

// LogConsent logs the outcome of a consent prompt.
func (l *Logger) LogConsent(ctx context.Context, clearName, risk string, approved bool, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"clear_name":  clearName,
		"risk":        risk,
		"approved":    approved,
		"duration_ms": duration.Milliseconds(),
	}).Info("consent decision")
}

// LogDelegation logs the outcome of a kernel delegation.
func (l *Logger) LogDelegation(ctx context.Context, clearName string, err error) {
	entry := l.WithContext(ctx).WithField("clear_name", clearName)
	if err != nil {
		entry.WithField("error", err.Error()).Error("delegation failed")
		return
	}
	entry.Info("delegation committed")
}
