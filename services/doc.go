// Package services provides the relay's collaborator implementations and its
// HTTP surface.
//
// The coordinator package defines what it needs — a user directory, durable
// exchange and message stores, and an audit sink — and this package supplies
// them:
//
//   - MemoryDirectory, MemoryExchangeStore, MemoryMessageStore: in-process
//     implementations with the same atomicity guarantees as the Postgres
//     versions, used by tests and the demo relay.
//   - PostgresStore: durable exchange and message persistence with a unique
//     index on message nonces and compare-and-swap exchange transitions.
//   - ZapAuditSink: structured security-event logging; MemoryAuditSink for
//     assertions in tests.
//   - RelayServer: the chi HTTP API the endpoints talk to, consuming Signed
//     envelopes so every mutating request is attributable to an identity.
//   - RelayClient: the HTTP client endpoints use to reach a relay.
package services
