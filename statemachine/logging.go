package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/statecart/statecart/logger"
)

// FireEvent describes one Fire call for logging hooks. States and triggers
// are rendered with fmt so the hooks need not be generic.
type FireEvent struct {
	Machine      string
	Trigger      string
	From         string
	To           string
	Transitioned bool
	Duration     time.Duration
}

// Logger provides logging hooks for trigger handling.
type Logger interface {
	TriggerFired(ctx context.Context, event FireEvent)
	TriggerDeclined(ctx context.Context, event FireEvent)
	ActionFailed(ctx context.Context, event FireEvent, err error)
	StateWriteFailed(ctx context.Context, event FireEvent, err error)
}

// DefaultLogger implements Logger using slog. Attributes attached to the
// context through the logger package are included.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger that resolves its slog.Logger from the
// context on every call.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{}
}

// NewSlogLogger creates a logger writing to l.
func NewSlogLogger(l *slog.Logger) *DefaultLogger {
	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) get(ctx context.Context) *slog.Logger {
	if l.logger != nil {
		return l.logger
	}

	return logger.Get(ctx)
}

func (l *DefaultLogger) TriggerFired(ctx context.Context, event FireEvent) {
	fields := []any{
		"machine", event.Machine,
		"trigger", event.Trigger,
		"from", event.From,
		"duration_ms", event.Duration.Milliseconds(),
	}

	if event.Transitioned {
		fields = append(fields, "to", event.To)
	}

	l.get(ctx).InfoContext(ctx, "Trigger fired", fields...)
}

func (l *DefaultLogger) TriggerDeclined(ctx context.Context, event FireEvent) {
	l.get(ctx).DebugContext(ctx, "Trigger declined",
		"machine", event.Machine,
		"trigger", event.Trigger,
		"state", event.From,
	)
}

func (l *DefaultLogger) ActionFailed(ctx context.Context, event FireEvent, err error) {
	l.get(ctx).ErrorContext(ctx, "Post-transition action failed",
		"machine", event.Machine,
		"trigger", event.Trigger,
		"from", event.From,
		"to", event.To,
		"error", err,
	)
}

func (l *DefaultLogger) StateWriteFailed(ctx context.Context, event FireEvent, err error) {
	l.get(ctx).ErrorContext(ctx, "State write failed",
		"machine", event.Machine,
		"trigger", event.Trigger,
		"from", event.From,
		"to", event.To,
		"error", err,
	)
}

type nopLogger struct{}

func (nopLogger) TriggerFired(context.Context, FireEvent)            {}
func (nopLogger) TriggerDeclined(context.Context, FireEvent)         {}
func (nopLogger) ActionFailed(context.Context, FireEvent, error)     {}
func (nopLogger) StateWriteFailed(context.Context, FireEvent, error) {}
