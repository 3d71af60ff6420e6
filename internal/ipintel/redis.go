package ipintel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/solatis/tidegate/internal/types"
)

// DefaultRedisPrefix namespaces IP records in a shared Redis.
const DefaultRedisPrefix = "tidegate:ip:"

// RedisConfig configures a Redis-backed cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache stores records as JSON strings without expiry.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.Prefix), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(ip string) string {
	return c.prefix + ip
}

// Get returns the cached record for ip.
func (c *RedisCache) Get(ctx context.Context, ip string) (Record, error) {
	data, err := c.client.Get(ctx, c.key(ip)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, types.ErrCacheMiss
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, types.ErrCacheMiss
	}
	return rec, nil
}

// Put stores the record for ip with no TTL.
func (c *RedisCache) Put(ctx context.Context, ip string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(ip), data, 0).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
