package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching enrichment results.
// The local LRU implementation bounds the entity cache that would otherwise
// grow without limit across the process lifetime.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetEntity retrieves a cached enriched entity. Returns nil, nil on miss.
	GetEntity(ctx context.Context, name string) (*Entity, error)

	// SetEntity caches an enriched entity by display name.
	SetEntity(ctx context.Context, name string, entity *Entity, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
