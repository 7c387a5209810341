// Package protocol defines the data model and wire types for the parley
// key-exchange protocol.
//
// The two records at the heart of the protocol are:
//
//   - ExchangeRecord: one key-exchange attempt between an initiator and a
//     responder, relayed and persisted by the coordinator. At most one
//     non-expired pending or completed record may exist per unordered
//     identity pair.
//   - SecureMessage: one AEAD-protected message between two parties whose
//     exchange completed. Accepted messages are immutable; the replay guard
//     validates nonce uniqueness, freshness, and ordering before acceptance.
//
// Messages travel through the relay wrapped in Signed envelopes so the relay
// can verify who produced them without trusting transport metadata. All
// binary fields serialize as base64 through encoding/json; the protocol's
// contract is on the decoded byte values, not the transport framing.
package protocol
