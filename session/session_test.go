package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parley-net/parley/coordinator"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
	"github.com/parley-net/parley/services"
	"github.com/stretchr/testify/require"
)

type party struct {
	id      string
	pubKey  crypto.PublicKey
	privKey crypto.PrivateKey
}

func newParty(t *testing.T, id string) *party {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &party{id: id, pubKey: pub, privKey: priv}
}

// completedRecord assembles the exchange record a relay would hold after both
// halves of a handshake went through.
func completedRecord(t *testing.T, initiator, responder *party, initHS, respHS *Handshake) *protocol.ExchangeRecord {
	t.Helper()
	now := time.Now().UTC()
	return &protocol.ExchangeRecord{
		ID:                    uuid.NewString(),
		InitiatorID:           initiator.id,
		ResponderID:           responder.id,
		InitiatorEphemeralKey: initHS.EphemeralKey().Bytes(),
		InitiatorSignature:    initHS.Signature(),
		InitiatorTimestamp:    initHS.Timestamp(),
		ResponderEphemeralKey: respHS.EphemeralKey().Bytes(),
		ResponderSignature:    respHS.Signature(),
		ResponderTimestamp:    respHS.Timestamp(),
		State:                 protocol.ExchangeCompleted,
		CreatedAt:             now,
		ExpiresAt:             now.Add(5 * time.Minute),
	}
}

func establishPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	alice := newParty(t, "alice")
	bob := newParty(t, "bob")

	aliceHS, err := NewHandshake(alice.id, bob.id, alice.privKey)
	require.NoError(t, err)
	bobHS, err := NewHandshake(bob.id, alice.id, bob.privKey)
	require.NoError(t, err)

	rec := completedRecord(t, alice, bob, aliceHS, bobHS)

	aliceSess, err := aliceHS.Establish(rec, bob.pubKey)
	require.NoError(t, err)
	bobSess, err := bobHS.Establish(rec, alice.pubKey)
	require.NoError(t, err)

	return aliceSess, bobSess
}

func TestEstablishDerivesMatchingKeys(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	// Confirmation tags only match if both sides derived the same key.
	require.Equal(t, aliceSess.ConfirmationTag(), bobSess.ConfirmationTag())
	require.NoError(t, aliceSess.VerifyPeerConfirmation(bobSess.ConfirmationTag()))
	require.NoError(t, bobSess.VerifyPeerConfirmation(aliceSess.ConfirmationTag()))
}

func TestVerifyPeerConfirmationRejectsWrongTag(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	tag := bobSess.ConfirmationTag()
	tag[0] ^= 0xff
	err := aliceSess.VerifyPeerConfirmation(tag)
	require.ErrorIs(t, err, protocol.ErrKeyAgreementMismatch)
}

func TestEstablishRejectsForgedSignature(t *testing.T) {
	alice := newParty(t, "alice")
	bob := newParty(t, "bob")
	mallory := newParty(t, "mallory")

	aliceHS, err := NewHandshake(alice.id, bob.id, alice.privKey)
	require.NoError(t, err)
	// Bob's half is signed by mallory's key instead of bob's.
	forgedHS, err := NewHandshake(bob.id, alice.id, mallory.privKey)
	require.NoError(t, err)

	rec := completedRecord(t, alice, bob, aliceHS, forgedHS)

	_, err = aliceHS.Establish(rec, bob.pubKey)
	require.ErrorIs(t, err, protocol.ErrSignatureInvalid)
}

func TestEstablishRejectsPendingRecord(t *testing.T) {
	alice := newParty(t, "alice")
	bob := newParty(t, "bob")

	aliceHS, err := NewHandshake(alice.id, bob.id, alice.privKey)
	require.NoError(t, err)
	bobHS, err := NewHandshake(bob.id, alice.id, bob.privKey)
	require.NoError(t, err)

	rec := completedRecord(t, alice, bob, aliceHS, bobHS)
	rec.State = protocol.ExchangePending

	_, err = aliceHS.Establish(rec, bob.pubKey)
	require.ErrorIs(t, err, protocol.ErrInvalidState)
}

func TestEstablishOnlyOnce(t *testing.T) {
	alice := newParty(t, "alice")
	bob := newParty(t, "bob")

	aliceHS, err := NewHandshake(alice.id, bob.id, alice.privKey)
	require.NoError(t, err)
	bobHS, err := NewHandshake(bob.id, alice.id, bob.privKey)
	require.NoError(t, err)

	rec := completedRecord(t, alice, bob, aliceHS, bobHS)

	_, err = aliceHS.Establish(rec, bob.pubKey)
	require.NoError(t, err)
	_, err = aliceHS.Establish(rec, bob.pubKey)
	require.Error(t, err)
}

func TestNewHandshakeRejectsSelf(t *testing.T) {
	alice := newParty(t, "alice")
	_, err := NewHandshake(alice.id, alice.id, alice.privKey)
	require.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	msg, err := aliceSess.Seal([]byte("hello bob"))
	require.NoError(t, err)
	require.Equal(t, "alice", msg.SenderID)
	require.Equal(t, "bob", msg.ReceiverID)
	require.Len(t, msg.Nonce, protocol.NonceSize)
	require.Equal(t, uint64(1), msg.SequenceNumber)

	plaintext, err := bobSess.Open(msg)
	require.NoError(t, err)
	require.Equal(t, []byte("hello bob"), plaintext)

	reply, err := bobSess.Seal([]byte("hello alice"))
	require.NoError(t, err)
	plaintext, err = aliceSess.Open(reply)
	require.NoError(t, err)
	require.Equal(t, []byte("hello alice"), plaintext)
}

func TestSealAssignsMonotonicSequence(t *testing.T) {
	aliceSess, _ := establishPair(t)

	for want := uint64(1); want <= 5; want++ {
		msg, err := aliceSess.Seal([]byte("x"))
		require.NoError(t, err)
		require.Equal(t, want, msg.SequenceNumber)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	msg, err := aliceSess.Seal([]byte("hello"))
	require.NoError(t, err)
	msg.Ciphertext[0] ^= 0x01

	_, err = bobSess.Open(msg)
	require.ErrorIs(t, err, protocol.ErrDecryptionFailed)
}

func TestOpenReportsDecryptionFailureToAuditSink(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	sink := services.NewMemoryAuditSink()
	bobSess.SetAuditSink(sink)

	msg, err := aliceSess.Seal([]byte("hello"))
	require.NoError(t, err)
	msg.AuthTag[0] ^= 0x01

	_, err = bobSess.Open(msg)
	require.ErrorIs(t, err, protocol.ErrDecryptionFailed)

	events := sink.EventsOfType(coordinator.EventDecryptionFailed)
	require.Len(t, events, 1)
	require.Equal(t, "alice", events[0].ActorID)
	require.Equal(t, coordinator.SeverityCritical, events[0].Severity)

	// A clean message leaves no trail.
	clean, err := aliceSess.Seal([]byte("fine"))
	require.NoError(t, err)
	_, err = bobSess.Open(clean)
	require.NoError(t, err)
	require.Len(t, sink.EventsOfType(coordinator.EventDecryptionFailed), 1)
}

func TestOpenRejectsWrongAddressing(t *testing.T) {
	aliceSess, bobSess := establishPair(t)

	msg, err := aliceSess.Seal([]byte("hello"))
	require.NoError(t, err)
	msg.ReceiverID = "carol"

	_, err = bobSess.Open(msg)
	require.ErrorIs(t, err, protocol.ErrUnauthorized)
}
