package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/thsr-fare-bot/internal/config"
	"github.com/wolfman30/thsr-fare-bot/internal/tdx"
	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; station cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStationCache returns the Redis-backed station cache, or nil when
// Redis is not configured.
func BuildStationCache(redisClient *redis.Client, cfg *appconfig.Config) tdx.StationCache {
	if redisClient == nil {
		return nil
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.StationCacheTTL
	}
	return tdx.NewRedisStationCache(redisClient, ttl)
}
