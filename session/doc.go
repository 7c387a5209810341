// Package session implements the endpoint side of the key-exchange protocol.
//
// A Handshake owns one ephemeral X25519 key pair for the lifetime of a single
// exchange attempt: it produces the signed offer an endpoint submits to the
// relay, and once the counterparty's ephemeral key is known it derives the
// session key and upgrades into a Session. The ephemeral private key never
// leaves the Handshake and is wiped as soon as derivation succeeds.
//
// A Session is the live secure channel: it seals outbound plaintext into
// replay-protected SecureMessages and opens inbound ones. Sequence numbers
// are assigned monotonically per session; nonces are fresh random per
// message.
package session
