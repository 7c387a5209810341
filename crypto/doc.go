// Package crypto provides the cryptographic primitives for the parley
// key-exchange and secure-channel protocol.
//
// This package implements the operations both endpoints and the relay rely on:
//
//   - Ed25519 long-term identity keys for signing handshake bindings
//   - X25519 ephemeral key pairs, generated fresh per exchange attempt
//   - Session key derivation (X25519 agreement stretched through HKDF-SHA256)
//   - Handshake binding signatures tying an ephemeral key to a recipient
//     identity and a timestamp
//   - Key-confirmation tags (HMAC-SHA256 over the exchange transcript)
//   - AES-256-GCM authenticated encryption with a detached auth tag
//
// The crypto package provides low-level primitives that are used by the
// coordinator, session, and services packages. Ephemeral private keys never
// leave the endpoint that generated them; only public halves travel through
// the relay.
//
// # Key Management
//
// Long-term Ed25519 keys authenticate ephemeral X25519 keys and are never
// used for bulk encryption. All key types include helper methods for
// serialization and comparison.
package crypto
