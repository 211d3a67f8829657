package tdx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stationKeyPrefix  = "tdx:station:"
	defaultStationTTL = 24 * time.Hour
)

// StationCache stores resolved stations keyed by the lookup input.
// GetStation returns nil, nil on a miss.
type StationCache interface {
	GetStation(ctx context.Context, key string) (*Station, error)
	PutStation(ctx context.Context, key string, st *Station) error
}

// RedisStationCache is a StationCache backed by Redis.
type RedisStationCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStationCache creates a Redis station cache. A non-positive ttl
// uses 24h.
func NewRedisStationCache(rdb *redis.Client, ttl time.Duration) *RedisStationCache {
	if rdb == nil {
		panic("tdx: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStationTTL
	}
	return &RedisStationCache{rdb: rdb, ttl: ttl}
}

func stationKey(key string) string {
	return stationKeyPrefix + key
}

// GetStation loads a cached station.
func (s *RedisStationCache) GetStation(ctx context.Context, key string) (*Station, error) {
	data, err := s.rdb.Get(ctx, stationKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("tdx: station cache get: %w", err)
	}
	var st Station
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("tdx: station cache decode: %w", err)
	}
	return &st, nil
}

// PutStation caches a station for the configured TTL.
func (s *RedisStationCache) PutStation(ctx context.Context, key string, st *Station) error {
	if st == nil {
		return fmt.Errorf("tdx: station cache: station required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("tdx: station cache marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, stationKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("tdx: station cache set: %w", err)
	}
	return nil
}
