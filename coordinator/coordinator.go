package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/metrics"
	"github.com/parley-net/parley/protocol"
)

// Coordinator relays handshake messages between endpoints and owns the
// exchange record lifecycle. It is stateless between calls: all state lives
// in the ExchangeStore, and concurrent calls touching the same record are
// serialized by the store's conditional updates.
type Coordinator struct {
	config    *protocol.Config
	store     ExchangeStore
	directory Directory
	audit     AuditSink
	verifier  Verifier

	// now is replaceable in tests.
	now func() time.Time
}

// NewCoordinator creates a coordinator with the provided collaborators.
func NewCoordinator(config *protocol.Config, store ExchangeStore, directory Directory, audit AuditSink, verifier Verifier) (*Coordinator, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if store == nil {
		return nil, errors.New("exchange store cannot be nil")
	}
	if directory == nil {
		return nil, errors.New("directory cannot be nil")
	}
	if audit == nil {
		return nil, errors.New("audit sink cannot be nil")
	}
	if verifier == nil {
		verifier = Ed25519Verifier()
	}

	return &Coordinator{
		config:    config,
		store:     store,
		directory: directory,
		audit:     audit,
		verifier:  verifier,
		now:       time.Now,
	}, nil
}

// InitiateParams carries the initiator's half of a handshake.
type InitiateParams struct {
	InitiatorID  string
	ResponderID  string
	EphemeralKey crypto.EphemeralPublicKey
	Signature    crypto.Signature
	Timestamp    time.Time
}

// Initiate creates a new pending exchange. The responder identity must exist
// and the initiator's handshake signature must verify against the directory
// key before anything is persisted. At most one non-expired exchange may be
// active per unordered identity pair.
func (c *Coordinator) Initiate(ctx context.Context, params InitiateParams) (*protocol.ExchangeRecord, error) {
	initiator, err := c.lookupIdentity(ctx, params.InitiatorID)
	if err != nil {
		return nil, err
	}
	if _, err := c.lookupIdentity(ctx, params.ResponderID); err != nil {
		return nil, err
	}

	// The initiator signs (responderID, ephemeralKey, timestamp): the
	// binding names the intended counterparty, not the signer.
	if !c.verifier.VerifyHandshake(initiator.PublicKey, params.ResponderID, params.EphemeralKey, params.Timestamp, params.Signature) {
		c.audit.Record(ctx, AuditEvent{
			Type:     EventSignatureInvalid,
			ActorID:  params.InitiatorID,
			Severity: SeverityCritical,
			Details:  map[string]string{"stage": "initiate", "responder": params.ResponderID},
		})
		return nil, protocol.ErrSignatureInvalid
	}

	now := c.now()
	rec := &protocol.ExchangeRecord{
		ID:                    uuid.NewString(),
		InitiatorID:           params.InitiatorID,
		ResponderID:           params.ResponderID,
		InitiatorEphemeralKey: params.EphemeralKey.Bytes(),
		InitiatorSignature:    params.Signature,
		InitiatorTimestamp:    params.Timestamp,
		State:                 protocol.ExchangePending,
		CreatedAt:             now,
		ExpiresAt:             now.Add(c.config.ExchangeTTL),
	}

	if err := c.store.CreateExchange(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating exchange: %w", err)
	}

	metrics.ExchangesInitiated.Inc()
	c.audit.Record(ctx, AuditEvent{
		Type:     EventExchangeInitiated,
		ActorID:  params.InitiatorID,
		Severity: SeverityInfo,
		Details:  map[string]string{"exchange": rec.ID, "responder": params.ResponderID},
	})

	return rec, nil
}

// RespondParams carries the responder's half of a handshake.
type RespondParams struct {
	CallerID     string
	EphemeralKey crypto.EphemeralPublicKey
	Signature    crypto.Signature
	Timestamp    time.Time
}

// Respond completes a pending exchange. The caller must be the designated
// responder and the record must still be pending and unexpired. The
// transition is compare-and-swap: of two racing responders, exactly one
// wins; the loser gets protocol.ErrInvalidState, never a duplicate record.
func (c *Coordinator) Respond(ctx context.Context, exchangeID string, params RespondParams) (*protocol.ExchangeRecord, error) {
	rec, err := c.store.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	if rec.ResponderID != params.CallerID {
		c.audit.Record(ctx, AuditEvent{
			Type:     EventUnauthorized,
			ActorID:  params.CallerID,
			Severity: SeverityInfo,
			Details:  map[string]string{"stage": "respond", "exchange": exchangeID},
		})
		return nil, protocol.ErrUnauthorized
	}

	now := c.now()
	if rec.Expired(now) || rec.State != protocol.ExchangePending {
		return nil, protocol.ErrInvalidState
	}

	responder, err := c.lookupIdentity(ctx, params.CallerID)
	if err != nil {
		return nil, err
	}

	// The responder signs (initiatorID, ephemeralKey, timestamp).
	if !c.verifier.VerifyHandshake(responder.PublicKey, rec.InitiatorID, params.EphemeralKey, params.Timestamp, params.Signature) {
		c.audit.Record(ctx, AuditEvent{
			Type:     EventSignatureInvalid,
			ActorID:  params.CallerID,
			Severity: SeverityCritical,
			Details:  map[string]string{"stage": "respond", "exchange": exchangeID},
		})
		return nil, protocol.ErrSignatureInvalid
	}

	won, err := c.store.CompleteExchange(ctx, exchangeID, params.EphemeralKey.Bytes(), params.Signature, params.Timestamp, now)
	if err != nil {
		return nil, fmt.Errorf("completing exchange: %w", err)
	}
	if !won {
		// Someone else completed it first, or it expired between the read
		// and the update.
		return nil, protocol.ErrInvalidState
	}

	metrics.ExchangesCompleted.Inc()
	c.audit.Record(ctx, AuditEvent{
		Type:     EventExchangeCompleted,
		ActorID:  params.CallerID,
		Severity: SeverityInfo,
		Details:  map[string]string{"exchange": exchangeID, "initiator": rec.InitiatorID},
	})

	return c.store.GetExchange(ctx, exchangeID)
}

// Confirm attaches a key-confirmation tag to a completed exchange. Either
// party may attach it; the tag is informational and does not change state.
func (c *Coordinator) Confirm(ctx context.Context, exchangeID, callerID string, tag []byte) error {
	rec, err := c.store.GetExchange(ctx, exchangeID)
	if err != nil {
		return err
	}

	if !rec.Involves(callerID) {
		c.audit.Record(ctx, AuditEvent{
			Type:     EventUnauthorized,
			ActorID:  callerID,
			Severity: SeverityInfo,
			Details:  map[string]string{"stage": "confirm", "exchange": exchangeID},
		})
		return protocol.ErrUnauthorized
	}

	if rec.State != protocol.ExchangeCompleted {
		return protocol.ErrInvalidState
	}
	// Completed exchanges stay confirmable through the grace window so the
	// slower endpoint can finish session derivation.
	if c.now().After(rec.ExpiresAt.Add(c.config.CompletionGrace)) {
		return protocol.ErrInvalidState
	}

	return c.store.AttachConfirmation(ctx, exchangeID, tag)
}

// Get fetches an exchange record. Expired records are treated as absent,
// except completed records, which stay fetchable for session derivation
// within the grace window.
func (c *Coordinator) Get(ctx context.Context, exchangeID string) (*protocol.ExchangeRecord, error) {
	rec, err := c.store.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if rec.Expired(now) {
		graceOK := rec.State == protocol.ExchangeCompleted && now.Before(rec.ExpiresAt.Add(c.config.CompletionGrace))
		if !graceOK {
			return nil, protocol.ErrExchangeNotFound
		}
	}

	return rec, nil
}

// PendingFor returns all non-expired exchanges the user participates in,
// newest first. A responder polls this to discover exchanges awaiting action.
func (c *Coordinator) PendingFor(ctx context.Context, userID string) ([]*protocol.ExchangeRecord, error) {
	return c.store.PendingFor(ctx, userID, c.now())
}

// RunGC deletes expired exchange records on the given interval until the
// context is canceled. Expiry is already implicit on every read path; this
// loop just keeps the store from growing without bound.
func (c *Coordinator) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := c.now().Add(-c.config.CompletionGrace)
			if n, err := c.store.DeleteExpired(ctx, cutoff); err == nil && n > 0 {
				metrics.ExchangesExpired.Add(float64(n))
			}
		}
	}
}

func (c *Coordinator) lookupIdentity(ctx context.Context, id string) (*protocol.Identity, error) {
	ident, err := c.directory.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, protocol.ErrIdentityNotFound) {
			c.audit.Record(ctx, AuditEvent{
				Type:     EventIdentityNotFound,
				ActorID:  id,
				Severity: SeverityInfo,
			})
		}
		return nil, err
	}
	return ident, nil
}
