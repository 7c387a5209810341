// Package common provides shared utilities for parley CLI commands.
//
// It contains the relay's YAML configuration schema and helpers used across
// the standalone binaries: key loading and generation, logger construction,
// and config file handling.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
	"github.com/parley-net/parley/services"
	"gopkg.in/yaml.v3"
)

// Config is the relay binary's configuration.
type Config struct {
	// ListenAddr is the relay API listen address.
	ListenAddr string `yaml:"listen_addr"`
	// MetricsAddr is the Prometheus metrics listen address. Empty disables
	// the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
	// EnablePprof enables the pprof debugging API.
	EnablePprof bool `yaml:"enable_pprof"`
	// LogJSON switches the logger to JSON output.
	LogJSON bool `yaml:"log_json"`
	// LogDebug lowers the log level to debug.
	LogDebug bool `yaml:"log_debug"`

	// Backend selects the storage backend: "memory" or "postgres".
	Backend  string                  `yaml:"backend"`
	Postgres services.PostgresConfig `yaml:"postgres"`

	// Protocol carries the handshake and replay timing parameters.
	Protocol protocol.Config `yaml:"protocol"`

	// GCInterval is how often expired exchange records are purged.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// DefaultConfig returns a relay config suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8080",
		Backend:    "memory",
		Protocol:   *protocol.DefaultConfig(),
		GCInterval: time.Minute,
	}
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Protocol.WithDefaults()
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Minute
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// SetupLogger builds the process logger.
func SetupLogger(jsonOutput, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
