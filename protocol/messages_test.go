package protocol

import (
	"testing"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignedRecover(t *testing.T) {
	_, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	msg := &SecureMessage{SenderID: "alice", ReceiverID: "bob", SequenceNumber: 1}
	signed, err := NewSigned(privKey, msg)
	require.NoError(t, err)

	recovered, signer, err := signed.Recover()
	require.NoError(t, err)
	require.Equal(t, "alice", recovered.SenderID)

	pubKey, err := privKey.PublicKey()
	require.NoError(t, err)
	require.True(t, signer.Equal(pubKey))
}

func TestSignedRecover_TamperedSignature(t *testing.T) {
	_, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &SecureMessage{SenderID: "alice"})
	require.NoError(t, err)

	signed.Signature[0] ^= 0xFF
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestSignedRecover_TamperedObject(t *testing.T) {
	_, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &SecureMessage{SenderID: "alice"})
	require.NoError(t, err)

	signed.Object.SenderID = "mallory"
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestPairKeyUnordered(t *testing.T) {
	require.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	require.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
	// The separator keeps concatenations from colliding.
	require.NotEqual(t, PairKey("ab", "c"), PairKey("a", "bc"))
}

func TestExchangeRecordExpired(t *testing.T) {
	now := time.Now()
	rec := &ExchangeRecord{State: ExchangePending, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}

	require.False(t, rec.Expired(now))
	require.False(t, rec.Expired(now.Add(5*time.Minute-time.Second)))
	require.True(t, rec.Expired(now.Add(5*time.Minute)))
	require.True(t, rec.Expired(now.Add(6*time.Minute)), "stored state is irrelevant once expiry passes")
}
