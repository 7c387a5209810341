package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parley-net/parley/coordinator"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
	"go.uber.org/atomic"
)

// Session is one live secure channel between two endpoints. It holds the
// derived session key and the outbound sequence counter; all inbound replay
// enforcement happens at the relay, so Open only authenticates and decrypts.
type Session struct {
	exchangeID string
	localID    string
	peerID     string

	key          crypto.SessionKey
	initiatorEph crypto.EphemeralPublicKey
	responderEph crypto.EphemeralPublicKey

	sequence *atomic.Uint64
	audit    coordinator.AuditSink
}

func newSession(rec *protocol.ExchangeRecord, localID, peerID string, key crypto.SessionKey, initiatorEph, responderEph crypto.EphemeralPublicKey) *Session {
	return &Session{
		exchangeID:   rec.ID,
		localID:      localID,
		peerID:       peerID,
		key:          key,
		initiatorEph: initiatorEph,
		responderEph: responderEph,
		sequence:     atomic.NewUint64(0),
	}
}

// SetAuditSink attaches a sink that receives an event whenever Open hits an
// authentication failure. The failure is returned to the caller either way;
// the sink makes sure it also leaves a trail, since a bad auth tag on a
// correctly addressed message means someone tampered with it in transit.
func (s *Session) SetAuditSink(audit coordinator.AuditSink) {
	s.audit = audit
}

// ExchangeID returns the id of the exchange this session was derived from.
func (s *Session) ExchangeID() string {
	return s.exchangeID
}

// LocalID returns the local endpoint's identity id.
func (s *Session) LocalID() string {
	return s.localID
}

// PeerID returns the counterparty's identity id.
func (s *Session) PeerID() string {
	return s.peerID
}

// ConfirmationTag computes the local key-confirmation tag for this session.
func (s *Session) ConfirmationTag() []byte {
	return crypto.ComputeConfirmationTag(s.key, s.exchangeID, s.initiatorEph, s.responderEph)
}

// VerifyPeerConfirmation checks the counterparty's confirmation tag. A
// mismatch means the two endpoints derived different session keys, which is
// unrecoverable for this session.
func (s *Session) VerifyPeerConfirmation(tag []byte) error {
	if !crypto.VerifyConfirmationTag(s.key, s.exchangeID, s.initiatorEph, s.responderEph, tag) {
		return protocol.ErrKeyAgreementMismatch
	}
	return nil
}

// Seal encrypts plaintext into a relay-ready SecureMessage. Each call
// consumes the next sequence number and a fresh random nonce; a message that
// is built but never submitted still burns its sequence number, which is
// harmless since the relay only requires sequences to increase.
func (s *Session) Seal(plaintext []byte) (*protocol.SecureMessage, error) {
	payload, err := crypto.SealMessage(s.key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealing message: %w", err)
	}

	nonce := make([]byte, protocol.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return &protocol.SecureMessage{
		ID:             uuid.NewString(),
		SenderID:       s.localID,
		ReceiverID:     s.peerID,
		Ciphertext:     payload.Ciphertext,
		IV:             payload.IV,
		AuthTag:        payload.AuthTag,
		Nonce:          nonce,
		SequenceNumber: s.sequence.Inc(),
		Timestamp:      time.Now().UTC(),
	}, nil
}

// Open authenticates and decrypts an inbound message. The message must be
// addressed to the local endpoint by the session peer; any authentication
// failure yields protocol.ErrDecryptionFailed and is reported to the audit
// sink when one is attached.
func (s *Session) Open(msg *protocol.SecureMessage) ([]byte, error) {
	if msg.SenderID != s.peerID || msg.ReceiverID != s.localID {
		return nil, protocol.ErrUnauthorized
	}

	plaintext, err := crypto.OpenMessage(s.key, msg.Payload())
	if err != nil {
		if s.audit != nil && errors.Is(err, protocol.ErrDecryptionFailed) {
			s.audit.Record(context.Background(), coordinator.AuditEvent{
				Type:     coordinator.EventDecryptionFailed,
				ActorID:  msg.SenderID,
				Severity: coordinator.SeverityCritical,
				Details: map[string]string{
					"exchange": s.exchangeID,
					"message":  msg.ID,
				},
			})
		}
		return nil, err
	}
	return plaintext, nil
}
