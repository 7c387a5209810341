package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/parley-net/parley/crypto"
)

// Signed wraps a message with an Ed25519 signature for authentication.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates an authenticated message by signing the serialized object and public key.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the wrapped object without verifying the signature.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the authenticated object with the signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	ok := s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...))
	if !ok {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// Identity is a user directory entry binding a user id to a long-term
// public key. Created at registration and immutable afterwards.
type Identity struct {
	ID                 string           `json:"id"`
	PublicKey          crypto.PublicKey `json:"public_key"`
	SignatureAlgorithm string           `json:"signature_algorithm"`
}

// SignatureAlgorithmEd25519 is the only algorithm the directory currently issues.
const SignatureAlgorithmEd25519 = "ed25519"

// ExchangeState is the lifecycle state of an ExchangeRecord.
type ExchangeState string

const (
	// ExchangePending means the initiator has offered an ephemeral key and
	// the responder has not yet answered.
	ExchangePending ExchangeState = "pending"
	// ExchangeCompleted means the responder attached its ephemeral key;
	// both sides can now derive the session key.
	ExchangeCompleted ExchangeState = "completed"
)

// ExchangeRecord is one key-exchange attempt relayed between two endpoints.
// The record is owned exclusively by the coordinator; ephemeral private keys
// are owned by the endpoints and never appear here.
type ExchangeRecord struct {
	ID          string `json:"id"`
	InitiatorID string `json:"initiator_id"`
	ResponderID string `json:"responder_id"`

	InitiatorEphemeralKey []byte           `json:"initiator_ephemeral_key"`
	InitiatorSignature    crypto.Signature `json:"initiator_signature"`
	InitiatorTimestamp    time.Time        `json:"initiator_timestamp"`

	// Responder fields are set together, exactly once, by the designated
	// responder when the record flips to completed.
	ResponderEphemeralKey []byte           `json:"responder_ephemeral_key,omitempty"`
	ResponderSignature    crypto.Signature `json:"responder_signature,omitempty"`
	ResponderTimestamp    time.Time        `json:"responder_timestamp,omitempty"`

	ConfirmationTag []byte `json:"confirmation_tag,omitempty"`

	State     ExchangeState `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the record is logically dead at the given time,
// regardless of the stored State field.
func (r *ExchangeRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Involves reports whether the given user is a party to this exchange.
func (r *ExchangeRecord) Involves(userID string) bool {
	return r.InitiatorID == userID || r.ResponderID == userID
}

// PairKey returns the canonical key for an unordered identity pair, used to
// enforce one active exchange per pair.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "\x00" + b
}

// NonceSize is the byte length of the per-message replay nonce. The nonce is
// distinct from the AEAD IV: it exists purely for replay detection and must
// be globally unique across all accepted messages.
const NonceSize = 16

// SecureMessage is one integrity-protected message between two parties.
// Immutable once accepted; the core only validates it before acceptance.
type SecureMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`

	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`

	Nonce          []byte    `json:"nonce"`
	SequenceNumber uint64    `json:"sequence_number"`
	Timestamp      time.Time `json:"timestamp"`
}

// Payload returns the AEAD fields as a crypto.SealedPayload for decryption.
func (m *SecureMessage) Payload() *crypto.SealedPayload {
	return &crypto.SealedPayload{
		IV:         m.IV,
		Ciphertext: m.Ciphertext,
		AuthTag:    m.AuthTag,
	}
}

// UnmarshalMessage deserializes a message from JSON.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
