// SPDX-License-Identifier: MIT

// Package config loads and validates the pulsehub runtime configuration
// from environment variables.
package config

import (
	"fmt"
	"time"
)

// Config holds the full runtime configuration of the profile engine.
type Config struct {
	// Redis connection for the hot tier.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SQLite database path for the static profile store.
	StaticDBPath string

	// HTTP listen address for the API surface.
	ListenAddr string

	// DefaultTTL is the lifetime of a dynamic profile without mutations.
	DefaultTTL time.Duration

	// ActiveUsersTTL bounds the "recently active" query window default.
	ActiveUsersTTL time.Duration

	// BatchSize is the reaper's per-iteration candidate batch.
	BatchSize int

	// MaxIterations caps reaper batches per tick.
	MaxIterations int

	// LockExpireTime bounds the reaper lease. Must exceed MaxExecutionTime
	// so a straggler tick cannot collide with the next one.
	LockExpireTime time.Duration

	// MaxExecutionTime is the outer deadline for one reaper tick.
	MaxExecutionTime time.Duration

	// ScheduleCron is the reaper schedule, evaluated in UTC.
	ScheduleCron string

	// OpTimeout bounds a single store operation.
	OpTimeout time.Duration
}

// Defaults mirrored by Load.
const (
	DefaultProfileTTL      = 7 * 24 * time.Hour
	DefaultActiveUsersTTL  = 24 * time.Hour
	DefaultBatchSize       = 1000
	DefaultMaxIterations   = 100
	DefaultLockExpireTime  = 50 * time.Minute
	DefaultMaxExecution    = 45 * time.Minute
	DefaultScheduleCron    = "0 * * * *"
	DefaultOpTimeout       = 3 * time.Second
	minProfileTTL          = time.Hour
	maxProfileTTL          = 30 * 24 * time.Hour
	maxBatchSize           = 10000
)

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		RedisAddr:        ParseString("PULSEHUB_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    ParseString("PULSEHUB_REDIS_PASSWORD", ""),
		RedisDB:          ParseInt("PULSEHUB_REDIS_DB", 0),
		StaticDBPath:     ParseString("PULSEHUB_STATIC_DB", "pulsehub.db"),
		ListenAddr:       ParseString("PULSEHUB_LISTEN", ":8080"),
		DefaultTTL:       ParseDuration("DEFAULT_TTL", DefaultProfileTTL),
		ActiveUsersTTL:   ParseDuration("ACTIVE_USERS_TTL", DefaultActiveUsersTTL),
		BatchSize:        ParseInt("BATCH_SIZE", DefaultBatchSize),
		MaxIterations:    ParseInt("MAX_ITERATIONS", DefaultMaxIterations),
		LockExpireTime:   ParseDuration("LOCK_EXPIRE_TIME", DefaultLockExpireTime),
		MaxExecutionTime: ParseDuration("MAX_EXECUTION_TIME", DefaultMaxExecution),
		ScheduleCron:     ParseString("SCHEDULE_CRON", DefaultScheduleCron),
		OpTimeout:        ParseDuration("PULSEHUB_OP_TIMEOUT", DefaultOpTimeout),
	}
}

// Validate enforces the documented bounds on every option.
func (c Config) Validate() error {
	if c.DefaultTTL < minProfileTTL || c.DefaultTTL > maxProfileTTL {
		return fmt.Errorf("DEFAULT_TTL %v out of range [%v, %v]", c.DefaultTTL, minProfileTTL, maxProfileTTL)
	}
	if c.ActiveUsersTTL <= 0 {
		return fmt.Errorf("ACTIVE_USERS_TTL must be positive, got %v", c.ActiveUsersTTL)
	}
	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("BATCH_SIZE %d out of range [1, %d]", c.BatchSize, maxBatchSize)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.LockExpireTime <= c.MaxExecutionTime {
		return fmt.Errorf("LOCK_EXPIRE_TIME %v must exceed MAX_EXECUTION_TIME %v", c.LockExpireTime, c.MaxExecutionTime)
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("PULSEHUB_OP_TIMEOUT must be positive, got %v", c.OpTimeout)
	}
	return nil
}
