package config

import (
	"fmt"
	"strings"
	"time"
)

// Worker count limits
const (
	MaxCoreWorkers = 1024
	MaxPoolWorkers = 65536
)

// PoolConfig holds configuration for a worker pool draining a dedup queue
type PoolConfig struct {
	// CoreWorkers is the number of long-lived workers
	// They block on the queue until work arrives and never exit while the pool runs
	// Default: 4, Range: 0-1024
	CoreWorkers int `yaml:"core_workers"`

	// MaxWorkers is the upper bound on concurrent workers, core included
	// Workers beyond CoreWorkers are started on demand when no worker is idle
	// Default: 4, Range: 1-65536, must be >= CoreWorkers
	MaxWorkers int `yaml:"max_workers"`

	// KeepAlive is how long an on-demand worker waits for work before exiting
	// Ignored when MaxWorkers == CoreWorkers
	// Default: 0
	KeepAlive time.Duration `yaml:"keep_alive"`

	// StartRate limits how many tasks per second the pool starts, across all workers
	// A task held back by the limit is already claimed; duplicates merge into it
	// 0 = unlimited
	// Default: 0
	StartRate float64 `yaml:"start_rate"`

	// StartBurst is how many tasks may start back to back under StartRate
	// Default: 1, must be >= 1 when StartRate > 0
	StartBurst int `yaml:"start_burst"`

	// Order is the claim order of pending tasks: "fifo" or "lifo"
	// Default: "fifo"
	Order string `yaml:"order"`
}

// DefaultPoolConfig returns the default pool configuration: a fixed pool of four workers
func DefaultPoolConfig() PoolConfig {
	return FixedPoolConfig(4)
}

// FixedPoolConfig returns a configuration with exactly n long-lived workers
func FixedPoolConfig(n int) PoolConfig {
	return PoolConfig{
		CoreWorkers: n,
		MaxWorkers:  n,
		KeepAlive:   0,
		StartBurst:  1,
		Order:       "fifo",
	}
}

// CachedPoolConfig returns a configuration with no long-lived workers that grows
// on demand and lets idle workers go after a minute
func CachedPoolConfig() PoolConfig {
	return PoolConfig{
		CoreWorkers: 0,
		MaxWorkers:  256,
		KeepAlive:   60 * time.Second,
		StartBurst:  1,
		Order:       "fifo",
	}
}

// Validate checks if the configuration has valid values
func (c PoolConfig) Validate() error {
	// Validate CoreWorkers
	if c.CoreWorkers < 0 || c.CoreWorkers > MaxCoreWorkers {
		return fmt.Errorf("core_workers must be between 0 and %d (got %d)", MaxCoreWorkers, c.CoreWorkers)
	}

	// Validate MaxWorkers
	if c.MaxWorkers < 1 || c.MaxWorkers > MaxPoolWorkers {
		return fmt.Errorf("max_workers must be between 1 and %d (got %d)", MaxPoolWorkers, c.MaxWorkers)
	}
	if c.MaxWorkers < c.CoreWorkers {
		return fmt.Errorf("max_workers (%d) must be >= core_workers (%d)", c.MaxWorkers, c.CoreWorkers)
	}

	// Validate KeepAlive
	if c.KeepAlive < 0 {
		return fmt.Errorf("keep_alive cannot be negative (got %v)", c.KeepAlive)
	}

	// Validate StartRate and StartBurst
	if c.StartRate < 0 {
		return fmt.Errorf("start_rate cannot be negative (got %g)", c.StartRate)
	}
	if c.StartRate > 0 && c.StartBurst < 1 {
		return fmt.Errorf("start_burst must be at least 1 when start_rate is set (got %d)", c.StartBurst)
	}

	// Validate Order
	switch strings.ToLower(c.Order) {
	case "", "fifo", "lifo":
	default:
		return fmt.Errorf("order must be 'fifo' or 'lifo' (got %q)", c.Order)
	}

	return nil
}

// Fixed reports whether the pool never grows beyond its core workers
func (c PoolConfig) Fixed() bool {
	return c.MaxWorkers == c.CoreWorkers
}

// String returns a human-readable representation of the config
func (c PoolConfig) String() string {
	order := c.Order
	if order == "" {
		order = "fifo"
	}
	return fmt.Sprintf(
		"PoolConfig{CoreWorkers: %d, MaxWorkers: %d, KeepAlive: %v, StartRate: %g, StartBurst: %d, Order: %s}",
		c.CoreWorkers, c.MaxWorkers, c.KeepAlive, c.StartRate, c.StartBurst, order,
	)
}

// PoolConfigFromEnv creates a PoolConfig from environment variables,
// falling back to defaults
//
// Environment variables:
//   - MERGEQ_CORE_WORKERS: Number of long-lived workers (default: 4)
//   - MERGEQ_MAX_WORKERS: Upper bound on workers (default: 4)
//   - MERGEQ_KEEP_ALIVE: Idle timeout for on-demand workers, e.g. "30s" (default: 0)
//   - MERGEQ_START_RATE: Tasks started per second, 0 for unlimited (default: 0)
//   - MERGEQ_START_BURST: Burst size under MERGEQ_START_RATE (default: 1)
//   - MERGEQ_ORDER: Claim order, "fifo" or "lifo" (default: fifo)
//
// Returns an error if any environment variable has an invalid value.
func PoolConfigFromEnv() (PoolConfig, error) {
	return ApplyEnv(DefaultPoolConfig())
}

// ApplyEnv overrides fields of cfg from the MERGEQ_* environment variables
// and validates the result
func ApplyEnv(cfg PoolConfig) (PoolConfig, error) {
	if err := parseEnvInt("MERGEQ_CORE_WORKERS", &cfg.CoreWorkers); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MERGEQ_MAX_WORKERS", &cfg.MaxWorkers); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("MERGEQ_KEEP_ALIVE", &cfg.KeepAlive); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("MERGEQ_START_RATE", &cfg.StartRate); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MERGEQ_START_BURST", &cfg.StartBurst); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MERGEQ_ORDER", &cfg.Order); err != nil {
		return cfg, err
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid pool configuration from environment: %w", err)
	}

	return cfg, nil
}
