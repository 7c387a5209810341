package services

import (
	"context"
	"sync"

	"github.com/parley-net/parley/coordinator"
	"go.uber.org/zap"
)

// ZapAuditSink writes structured security events through a zap logger.
// Record never fails the caller: if the logger's output is unavailable the
// event is dropped by zap's own error handling, not by us.
type ZapAuditSink struct {
	log *zap.Logger
}

// NewZapAuditSink creates an audit sink over the given logger.
func NewZapAuditSink(log *zap.Logger) *ZapAuditSink {
	return &ZapAuditSink{log: log.Named("audit")}
}

// Record logs one security event at a level matching its severity.
func (s *ZapAuditSink) Record(ctx context.Context, event coordinator.AuditEvent) {
	fields := make([]zap.Field, 0, len(event.Details)+2)
	fields = append(fields,
		zap.String("event", event.Type),
		zap.String("actor", event.ActorID),
	)
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	switch event.Severity {
	case coordinator.SeverityCritical:
		s.log.Error("security event", fields...)
	case coordinator.SeverityWarning:
		s.log.Warn("security event", fields...)
	default:
		s.log.Info("security event", fields...)
	}
}

// MemoryAuditSink collects events for assertions in tests.
type MemoryAuditSink struct {
	mu     sync.Mutex
	events []coordinator.AuditEvent
}

// NewMemoryAuditSink creates an empty in-memory sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

// Record appends the event.
func (s *MemoryAuditSink) Record(ctx context.Context, event coordinator.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a snapshot of recorded events.
func (s *MemoryAuditSink) Events() []coordinator.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coordinator.AuditEvent(nil), s.events...)
}

// EventsOfType returns recorded events matching the given type.
func (s *MemoryAuditSink) EventsOfType(eventType string) []coordinator.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []coordinator.AuditEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
