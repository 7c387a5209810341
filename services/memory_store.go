package services

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// MemoryExchangeStore implements coordinator.ExchangeStore in memory.
// A single mutex serializes every operation, which gives the same atomicity
// the Postgres implementation gets from conditional updates.
type MemoryExchangeStore struct {
	mu        sync.Mutex
	exchanges map[string]*protocol.ExchangeRecord
}

// NewMemoryExchangeStore creates an empty in-memory exchange store.
func NewMemoryExchangeStore() *MemoryExchangeStore {
	return &MemoryExchangeStore{
		exchanges: make(map[string]*protocol.ExchangeRecord),
	}
}

// CreateExchange inserts a record unless a live exchange already exists for
// the same unordered pair.
func (s *MemoryExchangeStore) CreateExchange(ctx context.Context, rec *protocol.ExchangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := protocol.PairKey(rec.InitiatorID, rec.ResponderID)
	for _, existing := range s.exchanges {
		if protocol.PairKey(existing.InitiatorID, existing.ResponderID) != pair {
			continue
		}
		if !existing.Expired(rec.CreatedAt) {
			return protocol.ErrInvalidState
		}
	}

	s.exchanges[rec.ID] = cloneExchange(rec)
	return nil
}

// GetExchange fetches a record by id.
func (s *MemoryExchangeStore) GetExchange(ctx context.Context, id string) (*protocol.ExchangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.exchanges[id]
	if !ok {
		return nil, protocol.ErrExchangeNotFound
	}
	return cloneExchange(rec), nil
}

// CompleteExchange flips a pending, unexpired record to completed. Returns
// whether this caller won the transition.
func (s *MemoryExchangeStore) CompleteExchange(ctx context.Context, id string, ephemeralKey []byte, sig crypto.Signature, timestamp, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.exchanges[id]
	if !ok {
		return false, protocol.ErrExchangeNotFound
	}
	if rec.State != protocol.ExchangePending || rec.Expired(now) {
		return false, nil
	}

	rec.ResponderEphemeralKey = append([]byte(nil), ephemeralKey...)
	rec.ResponderSignature = crypto.NewSignature(sig.Bytes())
	rec.ResponderTimestamp = timestamp
	rec.State = protocol.ExchangeCompleted
	return true, nil
}

// AttachConfirmation stores the key-confirmation tag on a record.
func (s *MemoryExchangeStore) AttachConfirmation(ctx context.Context, id string, tag []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.exchanges[id]
	if !ok {
		return protocol.ErrExchangeNotFound
	}
	rec.ConfirmationTag = append([]byte(nil), tag...)
	return nil
}

// PendingFor returns non-expired records involving the user, newest first.
func (s *MemoryExchangeStore) PendingFor(ctx context.Context, userID string, now time.Time) ([]*protocol.ExchangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*protocol.ExchangeRecord
	for _, rec := range s.exchanges {
		if rec.Involves(userID) && !rec.Expired(now) {
			result = append(result, cloneExchange(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteExpired removes records whose expiry passed before the cutoff.
func (s *MemoryExchangeStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, rec := range s.exchanges {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.exchanges, id)
			removed++
		}
	}
	return removed, nil
}

func cloneExchange(rec *protocol.ExchangeRecord) *protocol.ExchangeRecord {
	out := *rec
	out.InitiatorEphemeralKey = append([]byte(nil), rec.InitiatorEphemeralKey...)
	out.ResponderEphemeralKey = append([]byte(nil), rec.ResponderEphemeralKey...)
	out.ConfirmationTag = append([]byte(nil), rec.ConfirmationTag...)
	if rec.ResponderEphemeralKey == nil {
		out.ResponderEphemeralKey = nil
	}
	if rec.ConfirmationTag == nil {
		out.ConfirmationTag = nil
	}
	return &out
}

// MemoryMessageStore implements coordinator.MessageStore in memory. The
// nonce set and the message log mutate under one mutex, mirroring the
// atomicity of the Postgres unique index.
type MemoryMessageStore struct {
	mu       sync.Mutex
	nonces   map[string]struct{}
	messages []*protocol.SecureMessage
	lastSeq  map[string]uint64
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		nonces:  make(map[string]struct{}),
		lastSeq: make(map[string]uint64),
	}
}

// InsertMessage persists a message, enforcing global nonce uniqueness and
// per-direction sequence monotonicity under one lock. The nonce check runs
// first so a bit-identical replay is classified as a duplicate.
func (s *MemoryMessageStore) InsertMessage(ctx context.Context, msg *protocol.SecureMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonceKey := hex.EncodeToString(msg.Nonce)
	if _, seen := s.nonces[nonceKey]; seen {
		return protocol.ErrDuplicateNonce
	}

	dir := msg.SenderID + "\x00" + msg.ReceiverID
	if last, seen := s.lastSeq[dir]; seen && msg.SequenceNumber <= last {
		return protocol.ErrOutOfOrder
	}

	s.nonces[nonceKey] = struct{}{}
	stored := *msg
	s.messages = append(s.messages, &stored)
	s.lastSeq[dir] = msg.SequenceNumber
	return nil
}

// LastSequence returns the highest accepted sequence number for a direction.
func (s *MemoryMessageStore) LastSequence(ctx context.Context, senderID, receiverID string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.lastSeq[senderID+"\x00"+receiverID]
	return seq, ok, nil
}

// MessagesFor returns accepted messages for a receiver since the given time,
// oldest first.
func (s *MemoryMessageStore) MessagesFor(ctx context.Context, receiverID string, since time.Time) ([]*protocol.SecureMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*protocol.SecureMessage
	for _, msg := range s.messages {
		if msg.ReceiverID == receiverID && !msg.Timestamp.Before(since) {
			copied := *msg
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}
