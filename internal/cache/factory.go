package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	TTL     time.Duration
	Prefix  string
	// CleanupInterval is how often the memory backend sweeps expired
	// entries. Zero means the backend default.
	CleanupInterval time.Duration
}

// NewResultCache picks a backend. redisClient is only used for BackendRedis.
func NewResultCache(cfg Config, redisClient *redis.Client) ResultCache {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisResultCache(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	case BackendMemory:
		return NewMemoryResultCache(cfg.CleanupInterval)
	default:
		return Nop{}
	}
}
