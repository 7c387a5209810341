// Package coordinator implements the server-side key-exchange state machine
// and the per-message replay guard.
//
// The Coordinator relays signed handshake messages between two endpoints
// without ever seeing private key material. It verifies every handshake
// binding signature against the user directory before transitioning state:
// the relay is not a trust anchor by itself, but it refuses to persist
// records whose signatures do not check out. It enforces one active exchange
// per unordered identity pair and treats expiry as implicit rejection.
//
// The ReplayGuard gates every secure message behind three independent
// checks: global nonce uniqueness (enforced by a storage-level unique
// constraint, because two concurrent submissions of the same nonce are a
// race an application-level check cannot close), timestamp freshness, and
// per-direction sequence monotonicity. Only an accepted message is persisted.
package coordinator
