package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/metrics"
	"github.com/Flashl3opard/structify/pkg/logging/logging"
)

// LoggingResultCache wraps a ResultCache with logging + metrics.
type LoggingResultCache struct {
	inner ResultCache
}

func NewLoggingResultCache(inner ResultCache) ResultCache {
	if _, ok := inner.(Nop); ok {
		return inner
	}
	return &LoggingResultCache{inner: inner}
}

func (c *LoggingResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	}

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("result_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("result_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := append(keyFields(key),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("result_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("result_cache_set", fields...)
	}

	return err
}

// keyFields splits a ResultKey string back into log fields.
// Expecting: result:<MODEL_ID>:<VERSION_ID>:<HASH>
func keyFields(key string) []zap.Field {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "result" {
		return []zap.Field{zap.String("cache_key", key)}
	}
	return []zap.Field{
		zap.String("model_id", parts[1]),
		zap.String("version_id", parts[2]),
		zap.String("hash", parts[3]),
	}
}
