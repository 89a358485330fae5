package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "couplemovie:catalog:"

// RedisCache shares resolved metadata between API instances.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// RedisOptions describes how to reach the cache server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects and pings the server so misconfiguration surfaces at startup.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Get loads metadata stored under the movie reference.
func (r *RedisCache) Get(ctx context.Context, movieRef string) (Metadata, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+movieRef).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Metadata{}, ErrCacheMiss
		}
		return Metadata{}, fmt.Errorf("redis get: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("decode cached metadata: %w", err)
	}
	return metadata, nil
}

// Set stores metadata with an expiry.
func (r *RedisCache) Set(ctx context.Context, movieRef string, metadata Metadata, ttl time.Duration) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+movieRef, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
