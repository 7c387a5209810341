package services

import (
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// InitiateRequest is the initiator's half of a handshake, sent inside a
// Signed envelope whose signer must match the initiator's directory key.
type InitiateRequest struct {
	InitiatorID  string           `json:"initiator_id"`
	ResponderID  string           `json:"responder_id"`
	EphemeralKey []byte           `json:"ephemeral_key"`
	Signature    crypto.Signature `json:"signature"`
	Timestamp    time.Time        `json:"timestamp"`
}

// RespondRequest is the responder's half of a handshake.
type RespondRequest struct {
	ResponderID  string           `json:"responder_id"`
	EphemeralKey []byte           `json:"ephemeral_key"`
	Signature    crypto.Signature `json:"signature"`
	Timestamp    time.Time        `json:"timestamp"`
}

// ConfirmRequest attaches a key-confirmation tag to a completed exchange.
type ConfirmRequest struct {
	UserID          string `json:"user_id"`
	ConfirmationTag []byte `json:"confirmation_tag"`
}

// ExchangeResponse wraps a single exchange record.
type ExchangeResponse struct {
	Exchange *protocol.ExchangeRecord `json:"exchange"`
}

// PendingResponse lists exchanges awaiting a user's action, newest first.
type PendingResponse struct {
	Exchanges []*protocol.ExchangeRecord `json:"exchanges"`
}

// SubmitMessageResponse acknowledges an accepted secure message.
type SubmitMessageResponse struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id,omitempty"`
}

// MessagesResponse lists accepted messages for a receiver.
type MessagesResponse struct {
	Messages []*protocol.SecureMessage `json:"messages"`
}

// RegisterIdentityResponse confirms a directory registration.
type RegisterIdentityResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

// SearchResponse lists directory entries matching a prefix.
type SearchResponse struct {
	Identities []*protocol.Identity `json:"identities"`
}
