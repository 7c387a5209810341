package protocol

import (
	"errors"

	"github.com/parley-net/parley/crypto"
)

// Error taxonomy for the key-exchange and secure-channel core. All of these
// are recoverable at the caller's discretion except ErrKeyAgreementMismatch,
// which indicates an implementation bug and must fail loudly.
var (
	// ErrIdentityNotFound means the referenced user does not exist in the directory.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrExchangeNotFound means no live exchange record matches the given id.
	ErrExchangeNotFound = errors.New("exchange not found")

	// ErrUnauthorized means the caller is not the party the operation is addressed to.
	ErrUnauthorized = errors.New("caller is not the addressed party")

	// ErrInvalidState means a handshake step was attempted out of order,
	// after completion, or after expiry.
	ErrInvalidState = errors.New("exchange is not in the required state")

	// ErrSignatureInvalid means a handshake binding signature did not verify.
	ErrSignatureInvalid = errors.New("handshake signature invalid")

	// ErrDuplicateNonce means the message nonce was already accepted once,
	// in any conversation. A replay, or two racing submissions.
	ErrDuplicateNonce = errors.New("duplicate message nonce")

	// ErrStaleMessage means the message timestamp is outside the freshness window.
	ErrStaleMessage = errors.New("message timestamp outside freshness window")

	// ErrOutOfOrder means the sequence number does not exceed the last
	// accepted one for the sender-to-receiver direction.
	ErrOutOfOrder = errors.New("sequence number out of order")

	// ErrDecryptionFailed is re-exported from crypto: the AEAD tag did not verify.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed

	// ErrKeyAgreementMismatch means the two endpoints provably derived
	// different session keys. Protocol bug, not an attack.
	ErrKeyAgreementMismatch = errors.New("derived session keys diverge")
)

// RejectReason identifies which replay-guard check refused a message.
type RejectReason string

const (
	RejectDuplicateNonce RejectReason = "duplicate_nonce"
	RejectStaleMessage   RejectReason = "stale_message"
	RejectOutOfOrder     RejectReason = "out_of_order"
)

// Err maps a reject reason to its taxonomy error.
func (r RejectReason) Err() error {
	switch r {
	case RejectDuplicateNonce:
		return ErrDuplicateNonce
	case RejectStaleMessage:
		return ErrStaleMessage
	case RejectOutOfOrder:
		return ErrOutOfOrder
	}
	return errors.New("rejected: " + string(r))
}

// IsSecurityEvent reports whether an error must always generate an audit
// event before being returned to the caller.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, ErrDuplicateNonce) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrStaleMessage) ||
		errors.Is(err, ErrDecryptionFailed)
}

// IsProtocolReject reports whether an error belongs to the security-check
// taxonomy, as opposed to transient store or transport failures. The HTTP
// layer uses this to return a generic "rejected" answer without leaking
// which specific check failed to an unauthenticated caller.
func IsProtocolReject(err error) bool {
	return IsSecurityEvent(err) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrOutOfOrder)
}
