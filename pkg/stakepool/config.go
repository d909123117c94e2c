package stakepool

import (
	"github.com/pkg/errors"
)

// Config holds engine runtime settings. Pool limits live in the pool itself.
type Config struct {
	// UpdateConcurrency bounds the concurrent oracle queries of an update pass.
	UpdateConcurrency int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		UpdateConcurrency: 8,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.UpdateConcurrency <= 0 {
		return errors.Errorf("update concurrency must be positive, got %d", c.UpdateConcurrency)
	}
	return nil
}
