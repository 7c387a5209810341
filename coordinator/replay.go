package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parley-net/parley/metrics"
	"github.com/parley-net/parley/protocol"
)

// ReplayGuard gates secure messages behind three independent checks before
// acceptance: nonce uniqueness (global, storage-enforced), timestamp
// freshness, and per-direction sequence monotonicity. All three reject;
// none is advisory.
type ReplayGuard struct {
	config *protocol.Config
	store  MessageStore
	audit  AuditSink

	now func() time.Time
}

// NewReplayGuard creates a replay guard over the given message store.
func NewReplayGuard(config *protocol.Config, store MessageStore, audit AuditSink) (*ReplayGuard, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if store == nil {
		return nil, errors.New("message store cannot be nil")
	}
	if audit == nil {
		return nil, errors.New("audit sink cannot be nil")
	}

	return &ReplayGuard{
		config: config,
		store:  store,
		audit:  audit,
		now:    time.Now,
	}, nil
}

// Admit validates a secure message and, if every check passes, persists it.
// Nonce uniqueness and sequence monotonicity are enforced inside the store's
// single insert step: two concurrent submissions of the same nonce, or the
// same sequence number, cannot both land, and a replayed message is always
// classified as a duplicate nonce rather than an ordering violation.
func (g *ReplayGuard) Admit(ctx context.Context, msg *protocol.SecureMessage) error {
	if len(msg.Nonce) != protocol.NonceSize {
		return fmt.Errorf("nonce must be %d bytes, got %d", protocol.NonceSize, len(msg.Nonce))
	}

	now := g.now()

	// Freshness: bounded window in both directions; a far-future timestamp
	// is as suspect as a stale one.
	age := now.Sub(msg.Timestamp)
	if age > g.config.FreshnessWindow || age < -g.config.FreshnessWindow {
		g.reject(ctx, msg, protocol.RejectStaleMessage, EventStaleMessage, SeverityWarning)
		return protocol.ErrStaleMessage
	}

	// Uniqueness, ordering, and persistence as one atomic step.
	if err := g.store.InsertMessage(ctx, msg); err != nil {
		switch {
		case errors.Is(err, protocol.ErrDuplicateNonce):
			g.reject(ctx, msg, protocol.RejectDuplicateNonce, EventDuplicateNonce, SeverityCritical)
			return protocol.ErrDuplicateNonce
		case errors.Is(err, protocol.ErrOutOfOrder):
			g.reject(ctx, msg, protocol.RejectOutOfOrder, EventOutOfOrder, SeverityWarning)
			return protocol.ErrOutOfOrder
		default:
			return fmt.Errorf("persisting message: %w", err)
		}
	}

	metrics.MessagesAccepted.Inc()
	return nil
}

// MessagesFor returns accepted messages addressed to the receiver since the
// given time, oldest first. Only messages that passed Admit are visible here.
func (g *ReplayGuard) MessagesFor(ctx context.Context, receiverID string, since time.Time) ([]*protocol.SecureMessage, error) {
	return g.store.MessagesFor(ctx, receiverID, since)
}

func (g *ReplayGuard) reject(ctx context.Context, msg *protocol.SecureMessage, reason protocol.RejectReason, eventType string, severity Severity) {
	metrics.MessagesRejected.WithLabelValues(string(reason)).Inc()
	g.audit.Record(ctx, AuditEvent{
		Type:     eventType,
		ActorID:  msg.SenderID,
		Severity: severity,
		Details: map[string]string{
			"receiver": msg.ReceiverID,
			"sequence": fmt.Sprintf("%d", msg.SequenceNumber),
		},
	})
}
