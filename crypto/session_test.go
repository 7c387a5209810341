package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSessionKey_BothSidesAgree(t *testing.T) {
	alicePub, alicePriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	bobPub, bobPriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	info := SessionInfo("exch-1", "alice", "bob")

	aliceKey, err := DeriveSessionKey(alicePriv, bobPub, info)
	require.NoError(t, err)
	bobKey, err := DeriveSessionKey(bobPriv, alicePub, info)
	require.NoError(t, err)

	require.Len(t, aliceKey.Bytes(), SessionKeySize)
	require.True(t, aliceKey.Equal(bobKey), "independently derived session keys must be bit-identical")
}

func TestDeriveSessionKey_ContextSeparation(t *testing.T) {
	alicePub, alicePriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	_, bobPriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	_ = bobPriv

	key1, err := DeriveSessionKey(alicePriv, alicePub, SessionInfo("exch-1", "alice", "bob"))
	require.NoError(t, err)
	key2, err := DeriveSessionKey(alicePriv, alicePub, SessionInfo("exch-2", "alice", "bob"))
	require.NoError(t, err)

	require.False(t, key1.Equal(key2), "different exchange ids must derive different keys")
}

func TestDeriveSessionKey_FreshEphemeralKeys(t *testing.T) {
	pub1, priv1, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	pub2, priv2, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	require.NotEqual(t, pub1, pub2)
	require.NotEqual(t, priv1, priv2)
}

func TestConfirmationTag_RoundTrip(t *testing.T) {
	initiatorPub, initiatorPriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	responderPub, responderPriv, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	info := SessionInfo("exch-1", "alice", "bob")
	initiatorKey, err := DeriveSessionKey(initiatorPriv, responderPub, info)
	require.NoError(t, err)
	responderKey, err := DeriveSessionKey(responderPriv, initiatorPub, info)
	require.NoError(t, err)

	tag := ComputeConfirmationTag(initiatorKey, "exch-1", initiatorPub, responderPub)
	require.True(t, VerifyConfirmationTag(responderKey, "exch-1", initiatorPub, responderPub, tag))
}

func TestConfirmationTag_DetectsKeyMismatch(t *testing.T) {
	initiatorPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	responderPub, _, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	keyA := NewSessionKey(make([]byte, SessionKeySize))
	keyB := NewSessionKey(append(make([]byte, SessionKeySize-1), 1))

	tag := ComputeConfirmationTag(keyA, "exch-1", initiatorPub, responderPub)
	require.False(t, VerifyConfirmationTag(keyB, "exch-1", initiatorPub, responderPub, tag),
		"diverging session keys must be detected by the confirmation tag")
}
