package testutil

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
	"github.com/stretchr/testify/require"
)

// TestIdentity bundles a directory entry with its private key.
type TestIdentity struct {
	ID         string
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
}

// NewTestIdentity generates a fresh identity key pair for the given id.
func NewTestIdentity(t *testing.T, id string) *TestIdentity {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &TestIdentity{ID: id, PublicKey: pub, PrivateKey: priv}
}

// Identity returns the directory entry for this test identity.
func (ti *TestIdentity) Identity() *protocol.Identity {
	return &protocol.Identity{
		ID:                 ti.ID,
		PublicKey:          ti.PublicKey,
		SignatureAlgorithm: protocol.SignatureAlgorithmEd25519,
	}
}

// HandshakeHalf is one signed ephemeral-key offer.
type HandshakeHalf struct {
	EphemeralPub  crypto.EphemeralPublicKey
	EphemeralPriv crypto.EphemeralPrivateKey
	Signature     crypto.Signature
	Timestamp     time.Time
}

// NewHandshakeHalf generates an ephemeral key pair and signs the binding
// toward the recipient with the signer's identity key.
func NewHandshakeHalf(t *testing.T, signer *TestIdentity, recipientID string) *HandshakeHalf {
	t.Helper()
	pub, priv, err := crypto.GenerateEphemeralKeyPair()
	require.NoError(t, err)

	ts := time.Now().UTC().Truncate(time.Second)
	sig, err := crypto.SignHandshake(signer.PrivateKey, recipientID, pub, ts)
	require.NoError(t, err)

	return &HandshakeHalf{
		EphemeralPub:  pub,
		EphemeralPriv: priv,
		Signature:     sig,
		Timestamp:     ts,
	}
}

// ExchangeOption customizes a generated exchange record.
type ExchangeOption func(*protocol.ExchangeRecord)

// WithState sets the record state.
func WithState(state protocol.ExchangeState) ExchangeOption {
	return func(rec *protocol.ExchangeRecord) {
		rec.State = state
	}
}

// WithExpiry sets the record expiry.
func WithExpiry(at time.Time) ExchangeOption {
	return func(rec *protocol.ExchangeRecord) {
		rec.ExpiresAt = at
	}
}

// NewTestExchange builds a completed exchange record between the two
// identities, with valid binding signatures on both halves.
func NewTestExchange(t *testing.T, initiator, responder *TestIdentity, options ...ExchangeOption) *protocol.ExchangeRecord {
	t.Helper()

	initHalf := NewHandshakeHalf(t, initiator, responder.ID)
	respHalf := NewHandshakeHalf(t, responder, initiator.ID)
	now := time.Now().UTC()

	rec := &protocol.ExchangeRecord{
		ID:                    uuid.NewString(),
		InitiatorID:           initiator.ID,
		ResponderID:           responder.ID,
		InitiatorEphemeralKey: initHalf.EphemeralPub.Bytes(),
		InitiatorSignature:    initHalf.Signature,
		InitiatorTimestamp:    initHalf.Timestamp,
		ResponderEphemeralKey: respHalf.EphemeralPub.Bytes(),
		ResponderSignature:    respHalf.Signature,
		ResponderTimestamp:    respHalf.Timestamp,
		State:                 protocol.ExchangeCompleted,
		CreatedAt:             now,
		ExpiresAt:             now.Add(5 * time.Minute),
	}

	for _, option := range options {
		option(rec)
	}
	return rec
}

// MessageOption customizes a generated secure message.
type MessageOption func(*protocol.SecureMessage)

// WithSequence sets the sequence number.
func WithSequence(seq uint64) MessageOption {
	return func(msg *protocol.SecureMessage) {
		msg.SequenceNumber = seq
	}
}

// WithTimestamp sets the message timestamp.
func WithTimestamp(at time.Time) MessageOption {
	return func(msg *protocol.SecureMessage) {
		msg.Timestamp = at
	}
}

// WithNonce sets the replay nonce.
func WithNonce(nonce []byte) MessageOption {
	return func(msg *protocol.SecureMessage) {
		msg.Nonce = nonce
	}
}

// NewTestMessage builds a secure message sealed under the given session key.
// A zero-value key of the right size works for tests that never decrypt.
func NewTestMessage(t *testing.T, key crypto.SessionKey, senderID, receiverID string, plaintext []byte, options ...MessageOption) *protocol.SecureMessage {
	t.Helper()

	payload, err := crypto.SealMessage(key, plaintext)
	require.NoError(t, err)

	msg := &protocol.SecureMessage{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Ciphertext:     payload.Ciphertext,
		IV:             payload.IV,
		AuthTag:        payload.AuthTag,
		Nonce:          RandomBytes(t, protocol.NonceSize),
		SequenceNumber: 1,
		Timestamp:      time.Now().UTC(),
	}

	for _, option := range options {
		option(msg)
	}
	return msg
}

// NewTestSessionKey returns a random session key of the correct size.
func NewTestSessionKey(t *testing.T) crypto.SessionKey {
	t.Helper()
	return crypto.NewSessionKey(RandomBytes(t, crypto.SessionKeySize))
}

// RandomBytes returns length random bytes.
func RandomBytes(t *testing.T, length int) []byte {
	t.Helper()
	out := make([]byte, length)
	_, err := rand.Read(out)
	require.NoError(t, err)
	return out
}
