package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// handshakeDomain prefixes every signed binding so handshake signatures
// cannot be confused with any other Ed25519 signature from the same key.
const handshakeDomain = "parley/v1/handshake"

// confirmDomain prefixes the key-confirmation transcript.
const confirmDomain = "parley/v1/confirm"

// HandshakeBindingBytes encodes the payload an endpoint signs when offering
// an ephemeral key: the intended recipient's identity, the ephemeral public
// key, and a timestamp. All fields are length- or width-delimited so the
// encoding is unambiguous.
//
// Binding the recipient into the signature is what stops an adversary from
// capturing a signed ephemeral key and replaying it toward someone else.
func HandshakeBindingBytes(recipientID string, ephemeralKey EphemeralPublicKey, timestamp time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(handshakeDomain)
	var idLen [2]byte
	binary.BigEndian.PutUint16(idLen[:], uint16(len(recipientID)))
	buf.Write(idLen[:])
	buf.WriteString(recipientID)
	buf.Write(ephemeralKey[:])
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp.Unix()))
	buf.Write(ts[:])
	return buf.Bytes()
}

// SignHandshake signs the binding between the recipient identity, the
// sender's ephemeral public key, and a timestamp using the sender's
// long-term identity key.
func SignHandshake(privateKey PrivateKey, recipientID string, ephemeralKey EphemeralPublicKey, timestamp time.Time) (Signature, error) {
	return Sign(privateKey, HandshakeBindingBytes(recipientID, ephemeralKey, timestamp))
}

// VerifyHandshake checks a handshake binding signature against the claimed
// sender's long-term public key. It returns false on any mismatch — wrong
// key, wrong payload, corrupted signature — and never panics on untrusted
// input. Callers must treat false as a potential impersonation attempt.
func VerifyHandshake(publicKey PublicKey, recipientID string, ephemeralKey EphemeralPublicKey, timestamp time.Time, sig Signature) bool {
	return sig.Verify(publicKey, HandshakeBindingBytes(recipientID, ephemeralKey, timestamp))
}

// ComputeConfirmationTag derives the key-confirmation MAC both endpoints
// compute after deriving the session key: HMAC-SHA256 over a fixed
// transcript of the exchange id and both ephemeral public keys, keyed with
// the derived session key. Matching tags prove both sides hold the same key
// before the channel is considered live.
func ComputeConfirmationTag(key SessionKey, exchangeID string, initiatorKey, responderKey EphemeralPublicKey) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(confirmDomain))
	mac.Write([]byte{0})
	mac.Write([]byte(exchangeID))
	mac.Write(initiatorKey[:])
	mac.Write(responderKey[:])
	return mac.Sum(nil)
}

// VerifyConfirmationTag compares a received confirmation tag against a local
// recomputation in constant time. A mismatch means the two sides derived
// different session keys.
func VerifyConfirmationTag(key SessionKey, exchangeID string, initiatorKey, responderKey EphemeralPublicKey, tag []byte) bool {
	expected := ComputeConfirmationTag(key, exchangeID, initiatorKey, responderKey)
	return hmac.Equal(expected, tag)
}
