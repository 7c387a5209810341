package coordinator_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/parley-net/parley/coordinator"
	"github.com/parley-net/parley/protocol"
	"github.com/parley-net/parley/services"
	"github.com/stretchr/testify/require"
)

type guardFixture struct {
	guard *coordinator.ReplayGuard
	store *services.MemoryMessageStore
	audit *services.MemoryAuditSink

	mu  sync.Mutex
	now time.Time
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	f := &guardFixture{
		store: services.NewMemoryMessageStore(),
		audit: services.NewMemoryAuditSink(),
		now:   time.Now().UTC(),
	}

	guard, err := coordinator.NewReplayGuard(protocol.DefaultConfig(), f.store, f.audit)
	require.NoError(t, err)
	guard.SetNow(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})
	f.guard = guard
	return f
}

func (f *guardFixture) message(t *testing.T, seq uint64) *protocol.SecureMessage {
	t.Helper()
	nonce := make([]byte, protocol.NonceSize)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	f.mu.Lock()
	now := f.now
	f.mu.Unlock()

	return &protocol.SecureMessage{
		ID:             "msg",
		SenderID:       "alice",
		ReceiverID:     "bob",
		Ciphertext:     []byte("ciphertext"),
		IV:             make([]byte, 12),
		AuthTag:        make([]byte, 16),
		Nonce:          nonce,
		SequenceNumber: seq,
		Timestamp:      now,
	}
}

func TestAdmitAcceptsFreshMessage(t *testing.T) {
	f := newGuardFixture(t)

	require.NoError(t, f.guard.Admit(context.Background(), f.message(t, 1)))

	msgs, err := f.guard.MessagesFor(context.Background(), "bob", time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestAdmitRejectsDuplicateNonce(t *testing.T) {
	f := newGuardFixture(t)

	msg := f.message(t, 1)
	require.NoError(t, f.guard.Admit(context.Background(), msg))

	// Same nonce on a message that passes every other check.
	replay := f.message(t, 2)
	replay.Nonce = msg.Nonce
	err := f.guard.Admit(context.Background(), replay)
	require.ErrorIs(t, err, protocol.ErrDuplicateNonce)

	events := f.audit.EventsOfType(coordinator.EventDuplicateNonce)
	require.Len(t, events, 1)
	require.Equal(t, coordinator.SeverityCritical, events[0].Severity)
}

func TestAdmitRejectsNonceAcrossDirections(t *testing.T) {
	f := newGuardFixture(t)

	msg := f.message(t, 1)
	require.NoError(t, f.guard.Admit(context.Background(), msg))

	// Nonce uniqueness is global, not per conversation.
	other := f.message(t, 1)
	other.SenderID, other.ReceiverID = "bob", "alice"
	other.Nonce = msg.Nonce
	err := f.guard.Admit(context.Background(), other)
	require.ErrorIs(t, err, protocol.ErrDuplicateNonce)
}

func TestAdmitRejectsStaleMessage(t *testing.T) {
	f := newGuardFixture(t)

	msg := f.message(t, 1)
	msg.Timestamp = msg.Timestamp.Add(-protocol.DefaultConfig().FreshnessWindow - time.Second)
	err := f.guard.Admit(context.Background(), msg)
	require.ErrorIs(t, err, protocol.ErrStaleMessage)
	require.Len(t, f.audit.EventsOfType(coordinator.EventStaleMessage), 1)
}

func TestAdmitRejectsFutureMessage(t *testing.T) {
	f := newGuardFixture(t)

	msg := f.message(t, 1)
	msg.Timestamp = msg.Timestamp.Add(protocol.DefaultConfig().FreshnessWindow + time.Second)
	err := f.guard.Admit(context.Background(), msg)
	require.ErrorIs(t, err, protocol.ErrStaleMessage)
}

func TestAdmitRejectsOutOfOrderSequence(t *testing.T) {
	f := newGuardFixture(t)

	require.NoError(t, f.guard.Admit(context.Background(), f.message(t, 5)))

	err := f.guard.Admit(context.Background(), f.message(t, 5))
	require.ErrorIs(t, err, protocol.ErrOutOfOrder)

	err = f.guard.Admit(context.Background(), f.message(t, 4))
	require.ErrorIs(t, err, protocol.ErrOutOfOrder)

	// Gaps are fine; only regression is not.
	require.NoError(t, f.guard.Admit(context.Background(), f.message(t, 9)))
	require.Len(t, f.audit.EventsOfType(coordinator.EventOutOfOrder), 2)
}

func TestAdmitConcurrentSameSequenceSingleWinner(t *testing.T) {
	f := newGuardFixture(t)

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		msg := f.message(t, 1)
		wg.Add(1)
		go func(i int, msg *protocol.SecureMessage) {
			defer wg.Done()
			errs[i] = f.guard.Admit(context.Background(), msg)
		}(i, msg)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			require.ErrorIs(t, err, protocol.ErrOutOfOrder)
		}
	}
	require.Equal(t, 1, accepted)

	msgs, err := f.guard.MessagesFor(context.Background(), "bob", time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestAdmitTracksSequencePerDirection(t *testing.T) {
	f := newGuardFixture(t)

	require.NoError(t, f.guard.Admit(context.Background(), f.message(t, 5)))

	// The reverse direction has its own counter.
	reverse := f.message(t, 1)
	reverse.SenderID, reverse.ReceiverID = "bob", "alice"
	require.NoError(t, f.guard.Admit(context.Background(), reverse))
}

func TestAdmitRejectsBadNonceSize(t *testing.T) {
	f := newGuardFixture(t)

	msg := f.message(t, 1)
	msg.Nonce = msg.Nonce[:8]
	err := f.guard.Admit(context.Background(), msg)
	require.Error(t, err)
	require.NotErrorIs(t, err, protocol.ErrDuplicateNonce)
}

func TestMessagesForFiltersByReceiverAndTime(t *testing.T) {
	f := newGuardFixture(t)

	first := f.message(t, 1)
	require.NoError(t, f.guard.Admit(context.Background(), first))

	f.mu.Lock()
	f.now = f.now.Add(time.Minute)
	cutoff := f.now
	f.mu.Unlock()

	second := f.message(t, 2)
	require.NoError(t, f.guard.Admit(context.Background(), second))

	msgs, err := f.guard.MessagesFor(context.Background(), "bob", cutoff)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, second.Nonce, msgs[0].Nonce)

	msgs, err = f.guard.MessagesFor(context.Background(), "alice", time.Time{})
	require.NoError(t, err)
	require.Empty(t, msgs)
}
