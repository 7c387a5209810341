// Package cmd provides the parley CLI commands.
//
// # Commands
//
// relay: runs the relay server hosting the user directory, the key-exchange
// coordinator, and the replay-guarded message mailbox.
//
//	go run ./cmd/relay --addr=:8080 --backend=memory
//	go run ./cmd/relay --config=relay.yaml
//
// demo-cli: runs a complete two-party scenario against a relay, from identity
// registration through key exchange, confirmation, and encrypted messaging.
//
//	go run ./cmd/demo-cli --relay=http://localhost:8080
//
// # Configuration
//
// The relay supports YAML configuration via the --config flag; command-line
// flags override config file values. See cmd/relay for the schema.
package cmd
