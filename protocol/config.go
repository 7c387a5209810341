package protocol

import "time"

// Config provides the protocol's timing parameters.
type Config struct {
	// ExchangeTTL is how long a key-exchange attempt stays actionable after
	// creation. Once passed, the record is logically dead regardless of its
	// stored state; non-response within the TTL is implicit rejection.
	ExchangeTTL time.Duration `json:"exchange_ttl,string" yaml:"exchange_ttl"`

	// FreshnessWindow bounds how old a message timestamp may be before the
	// replay guard rejects it as stale.
	FreshnessWindow time.Duration `json:"freshness_window,string" yaml:"freshness_window"`

	// CompletionGrace is the extra window after expiry during which a
	// completed exchange can still be fetched for session derivation.
	CompletionGrace time.Duration `json:"completion_grace,string" yaml:"completion_grace"`
}

// DefaultConfig returns the reference timing parameters.
func DefaultConfig() *Config {
	return &Config{
		ExchangeTTL:     5 * time.Minute,
		FreshnessWindow: 5 * time.Minute,
		CompletionGrace: time.Minute,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c *Config) WithDefaults() *Config {
	def := DefaultConfig()
	if c.ExchangeTTL <= 0 {
		c.ExchangeTTL = def.ExchangeTTL
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = def.FreshnessWindow
	}
	if c.CompletionGrace <= 0 {
		c.CompletionGrace = def.CompletionGrace
	}
	return c
}
