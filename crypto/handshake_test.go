package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandshakeSignVerify(t *testing.T) {
	pubKey, privKey, err := GenerateKeyPair()
	require.NoError(t, err)

	ephPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	now := time.Now()
	sig, err := SignHandshake(privKey, "bob", ephPub, now)
	require.NoError(t, err)

	require.True(t, VerifyHandshake(pubKey, "bob", ephPub, now, sig))
}

func TestHandshakeVerify_RejectsMismatch(t *testing.T) {
	pubKey, privKey, err := GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	ephPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	otherEph, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	now := time.Now()
	sig, err := SignHandshake(privKey, "bob", ephPub, now)
	require.NoError(t, err)

	// Replaying the signed key toward a different recipient must fail.
	require.False(t, VerifyHandshake(pubKey, "carol", ephPub, now, sig))
	require.False(t, VerifyHandshake(otherPub, "bob", ephPub, now, sig))
	require.False(t, VerifyHandshake(pubKey, "bob", otherEph, now, sig))
	require.False(t, VerifyHandshake(pubKey, "bob", ephPub, now.Add(time.Second), sig))

	tampered := NewSignature(sig.Bytes())
	tampered[0] ^= 0xFF
	require.False(t, VerifyHandshake(pubKey, "bob", ephPub, now, tampered))
}

func TestHandshakeVerify_MalformedInputDoesNotPanic(t *testing.T) {
	ephPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	require.False(t, VerifyHandshake(PublicKey{1, 2, 3}, "bob", ephPub, time.Now(), Signature{4, 5}))
	require.False(t, VerifyHandshake(nil, "bob", ephPub, time.Now(), nil))
}

func TestHandshakeBindingBytes_Unambiguous(t *testing.T) {
	ephPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	a := HandshakeBindingBytes("ab", ephPub, now)
	b := HandshakeBindingBytes("a", ephPub, now)
	require.NotEqual(t, a, b, "length-prefixed encoding must not collide across ids")
}
