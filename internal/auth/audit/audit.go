// Package audit records security decisions. Recording is best effort: a sink
// failure is reported to the caller for logging but never changes an outcome.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

type Sink interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev domain.AuditEvent) error

func (f SinkFunc) Record(ctx context.Context, ev domain.AuditEvent) error { return f(ctx, ev) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, domain.AuditEvent) error { return nil })

// SlogSink writes events as structured log lines on the request logger.
type SlogSink struct{}

func (SlogSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	level := slog.LevelInfo
	if ev.Decision == domain.DecisionReject {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event", ev.Type),
		slog.String("audit_id", ev.ID),
		slog.Time("occurred_at", ev.OccurredAt),
	}
	if ev.Actor != "" {
		attrs = append(attrs, slog.String("actor", ev.Actor))
	}
	if ev.Email != "" {
		attrs = append(attrs, slog.String("email", ev.Email))
	}
	if ev.Decision != "" {
		attrs = append(attrs, slog.String("decision", string(ev.Decision)))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", string(ev.Reason)))
	}
	if ev.InvitationID != "" {
		attrs = append(attrs, slog.String("invitation_id", ev.InvitationID))
	}
	if len(ev.Candidates) > 0 {
		attrs = append(attrs, slog.Any("candidates", ev.Candidates))
	}
	if ev.Provider != "" {
		attrs = append(attrs, slog.String("provider", ev.Provider))
	}

	slogx.FromContext(ctx).LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// StoreSink persists events to the audit_events table.
type StoreSink struct {
	Store store.Store
}

func (s StoreSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	return s.Store.Audit().AppendEvent(ctx, ev)
}

// Multi fans an event out to every sink, joining their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev domain.AuditEvent) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Record(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// RecordTimeout bounds one Emit so a slow sink cannot hold up a login.
const RecordTimeout = 2 * time.Second

// Emit stamps ev with an id and time when missing and records it. Failures
// are logged and swallowed.
func Emit(ctx context.Context, sink Sink, ev domain.AuditEvent) {
	if sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = idx.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	// The decision already happened; do not let a cancelled request drop
	// its trail.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RecordTimeout)
	defer cancel()
	if err := sink.Record(ctx, ev); err != nil {
		slogx.FromContext(ctx).Error("failed to record audit event",
			slog.String("event", ev.Type),
			slog.String("audit_id", ev.ID),
			slog.Any("error", err),
		)
	}
}
