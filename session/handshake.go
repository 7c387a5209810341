package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// Handshake holds the ephemeral key material for one exchange attempt.
// One Handshake serves exactly one attempt: a retry means a fresh Handshake
// and therefore a fresh ephemeral key pair.
type Handshake struct {
	localID string
	peerID  string

	identityKey   crypto.PrivateKey
	ephemeralPub  crypto.EphemeralPublicKey
	ephemeralPriv crypto.EphemeralPrivateKey

	signature crypto.Signature
	timestamp time.Time

	established bool
}

// NewHandshake generates a fresh ephemeral key pair and signs the binding
// (peerID, ephemeralKey, timestamp) with the local identity key. The same
// constructor serves both roles: an initiator signs toward the responder and
// vice versa.
func NewHandshake(localID, peerID string, identityKey crypto.PrivateKey) (*Handshake, error) {
	if localID == "" || peerID == "" {
		return nil, errors.New("local and peer ids cannot be empty")
	}
	if localID == peerID {
		return nil, errors.New("cannot handshake with self")
	}

	pub, priv, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key pair: %w", err)
	}

	timestamp := time.Now().UTC().Truncate(time.Second)
	sig, err := crypto.SignHandshake(identityKey, peerID, pub, timestamp)
	if err != nil {
		return nil, fmt.Errorf("signing handshake binding: %w", err)
	}

	return &Handshake{
		localID:       localID,
		peerID:        peerID,
		identityKey:   identityKey,
		ephemeralPub:  pub,
		ephemeralPriv: priv,
		signature:     sig,
		timestamp:     timestamp,
	}, nil
}

// EphemeralKey returns the public half of the ephemeral key pair.
func (h *Handshake) EphemeralKey() crypto.EphemeralPublicKey {
	return h.ephemeralPub
}

// Signature returns the handshake binding signature.
func (h *Handshake) Signature() crypto.Signature {
	return h.signature
}

// Timestamp returns the signed timestamp.
func (h *Handshake) Timestamp() time.Time {
	return h.timestamp
}

// Establish derives the session key from a completed exchange record and
// upgrades the handshake into a live Session. The counterparty's binding
// signature is re-verified locally against their directory key: the relay
// checked it too, but the endpoint does not take the relay's word for it.
//
// The ephemeral private key is wiped on success; Establish can only succeed
// once per Handshake.
func (h *Handshake) Establish(rec *protocol.ExchangeRecord, peerKey crypto.PublicKey) (*Session, error) {
	if h.established {
		return nil, errors.New("handshake already established")
	}
	if rec.State != protocol.ExchangeCompleted {
		return nil, protocol.ErrInvalidState
	}
	if !rec.Involves(h.localID) || !rec.Involves(h.peerID) {
		return nil, protocol.ErrUnauthorized
	}

	initiatorEph, err := crypto.NewEphemeralPublicKey(rec.InitiatorEphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("parsing initiator ephemeral key: %w", err)
	}
	responderEph, err := crypto.NewEphemeralPublicKey(rec.ResponderEphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("parsing responder ephemeral key: %w", err)
	}

	var peerEph crypto.EphemeralPublicKey
	var peerSig crypto.Signature
	var peerTimestamp time.Time
	if h.localID == rec.InitiatorID {
		peerEph, peerSig, peerTimestamp = responderEph, rec.ResponderSignature, rec.ResponderTimestamp
	} else {
		peerEph, peerSig, peerTimestamp = initiatorEph, rec.InitiatorSignature, rec.InitiatorTimestamp
	}

	// The peer signed toward us; a signature toward anyone else means the
	// ephemeral key was lifted from a different conversation.
	if !crypto.VerifyHandshake(peerKey, h.localID, peerEph, peerTimestamp, peerSig) {
		return nil, protocol.ErrSignatureInvalid
	}

	info := crypto.SessionInfo(rec.ID, rec.InitiatorID, rec.ResponderID)
	key, err := crypto.DeriveSessionKey(h.ephemeralPriv, peerEph, info)
	if err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}

	h.ephemeralPriv.Zero()
	h.established = true

	return newSession(rec, h.localID, h.peerID, key, initiatorEph, responderEph), nil
}
