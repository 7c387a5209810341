package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/curve25519"
)

// EphemeralPublicKey represents the public half of a per-exchange X25519 key pair.
type EphemeralPublicKey [32]byte

// EphemeralPrivateKey represents the private half of a per-exchange X25519 key pair.
// It is owned exclusively by the endpoint that generated it and is discarded
// after session key derivation.
type EphemeralPrivateKey [32]byte

// GenerateEphemeralKeyPair generates a fresh X25519 key pair for a single
// exchange attempt. Ephemeral keys are never reused across attempts.
func GenerateEphemeralKeyPair() (EphemeralPublicKey, EphemeralPrivateKey, error) {
	var privKey EphemeralPrivateKey
	var pubKey EphemeralPublicKey

	if _, err := rand.Read(privKey[:]); err != nil {
		return pubKey, privKey, err
	}

	pub, err := curve25519.X25519(privKey[:], curve25519.Basepoint)
	if err != nil {
		return pubKey, privKey, err
	}
	copy(pubKey[:], pub)
	return pubKey, privKey, nil
}

// NewEphemeralPublicKey creates an EphemeralPublicKey from a byte slice.
func NewEphemeralPublicKey(data []byte) (EphemeralPublicKey, error) {
	var pk EphemeralPublicKey
	if len(data) != len(pk) {
		return pk, errInvalidEphemeralKey
	}
	copy(pk[:], data)
	return pk, nil
}

// Bytes returns the public key as a byte slice.
func (pk EphemeralPublicKey) Bytes() []byte {
	out := make([]byte, len(pk))
	copy(out, pk[:])
	return out
}

// String returns a hex-encoded string representation of the public key.
func (pk EphemeralPublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// Zero wipes the private key material in place.
func (sk *EphemeralPrivateKey) Zero() {
	for i := range sk {
		sk[i] = 0
	}
}
