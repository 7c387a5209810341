package coordinator

import (
	"context"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// Directory resolves user identities to their long-term public keys.
// Implementations must return protocol.ErrIdentityNotFound for unknown ids.
type Directory interface {
	Lookup(ctx context.Context, id string) (*protocol.Identity, error)
	Search(ctx context.Context, prefix string) ([]*protocol.Identity, error)
}

// ExchangeStore durably persists exchange records.
//
// CreateExchange must atomically reject a record when a non-expired pending
// or completed record already exists for the same unordered pair, returning
// protocol.ErrInvalidState. CompleteExchange is the compare-and-swap
// transition pending -> completed: it must only succeed when the stored
// state is still pending and the record has not expired, and reports whether
// this caller won the transition.
type ExchangeStore interface {
	CreateExchange(ctx context.Context, rec *protocol.ExchangeRecord) error
	GetExchange(ctx context.Context, id string) (*protocol.ExchangeRecord, error)
	CompleteExchange(ctx context.Context, id string, ephemeralKey []byte, sig crypto.Signature, timestamp, now time.Time) (bool, error)
	AttachConfirmation(ctx context.Context, id string, tag []byte) error
	PendingFor(ctx context.Context, userID string, now time.Time) ([]*protocol.ExchangeRecord, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageStore durably persists accepted secure messages. InsertMessage is
// the atomic admission step: it must enforce global nonce uniqueness with a
// storage-level constraint (protocol.ErrDuplicateNonce) and refuse a sequence
// number that does not exceed the last accepted one for the sender-to-receiver
// direction (protocol.ErrOutOfOrder). The nonce check wins when both are
// violated, so a replayed message is reported as a replay.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *protocol.SecureMessage) error
	LastSequence(ctx context.Context, senderID, receiverID string) (uint64, bool, error)
	MessagesFor(ctx context.Context, receiverID string, since time.Time) ([]*protocol.SecureMessage, error)
}

// Severity classifies audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Audit event types emitted by the core.
const (
	EventExchangeInitiated = "exchange_initiated"
	EventExchangeCompleted = "exchange_completed"
	EventSignatureInvalid  = "signature_invalid"
	EventUnauthorized      = "unauthorized"
	EventIdentityNotFound  = "identity_not_found"
	EventDuplicateNonce    = "duplicate_nonce"
	EventStaleMessage      = "stale_message"
	EventOutOfOrder        = "out_of_order"
	EventDecryptionFailed  = "decryption_failed"
)

// AuditEvent is one structured security event.
type AuditEvent struct {
	Type     string
	ActorID  string
	Severity Severity
	Details  map[string]string
}

// AuditSink receives structured security events. Record is fire-and-forget:
// the core never fails an otherwise-successful operation because the sink is
// unavailable, but it must not suppress the event either.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// Verifier checks handshake binding signatures. The coordinator performs
// verification itself, synchronously, before any state transition; it is an
// injected capability so tests can observe or substitute it.
type Verifier interface {
	VerifyHandshake(publicKey crypto.PublicKey, recipientID string, ephemeralKey crypto.EphemeralPublicKey, timestamp time.Time, sig crypto.Signature) bool
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(publicKey crypto.PublicKey, recipientID string, ephemeralKey crypto.EphemeralPublicKey, timestamp time.Time, sig crypto.Signature) bool

// VerifyHandshake calls f.
func (f VerifierFunc) VerifyHandshake(publicKey crypto.PublicKey, recipientID string, ephemeralKey crypto.EphemeralPublicKey, timestamp time.Time, sig crypto.Signature) bool {
	return f(publicKey, recipientID, ephemeralKey, timestamp, sig)
}

// Ed25519Verifier returns the production verifier backed by crypto.VerifyHandshake.
func Ed25519Verifier() Verifier {
	return VerifierFunc(crypto.VerifyHandshake)
}
