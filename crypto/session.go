package crypto

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var errInvalidEphemeralKey = errors.New("invalid ephemeral key size")

// sessionKDFDomain separates session-key HKDF output from any other use of
// the same agreement.
const sessionKDFDomain = "parley/v1/session"

// SessionInfo builds the HKDF context info from the exchange id and the
// identity pair, with the initiator always first. Both endpoints must feed
// identical info into DeriveSessionKey to arrive at the same key, so the
// ordering is fixed by protocol role rather than by caller.
func SessionInfo(exchangeID, initiatorID, responderID string) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(sessionKDFDomain)
	buf.WriteByte(0)
	buf.WriteString(exchangeID)
	buf.WriteByte(0)
	buf.WriteString(initiatorID)
	buf.WriteByte(0)
	buf.WriteString(responderID)
	return buf.Bytes()
}

// DeriveSessionKey performs X25519 key agreement between our ephemeral
// private key and the peer's ephemeral public key, then stretches the shared
// point through HKDF-SHA256 with the provided context info.
//
// Run independently by both endpoints with their own private halves, this
// must produce bit-identical session keys. That property is the core
// correctness guarantee of the handshake and is what the confirmation tag
// later checks end to end.
func DeriveSessionKey(privateKey EphemeralPrivateKey, publicKey EphemeralPublicKey, info []byte) (SessionKey, error) {
	sharedPoint, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, sharedPoint, nil, info)
	secret := make([]byte, SessionKeySize)
	if _, err := kdf.Read(secret); err != nil {
		return nil, err
	}

	return SessionKey(secret), nil
}
