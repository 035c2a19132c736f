package clients

import (
	"context"
	"errors"
	"time"

	"school-ledger/pkg/cache/redis"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "school_ledger_"

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration

	Prefix string
}

// RedisClient stores export statuses under a key prefix, with an index set
// listing the live ones.
type RedisClient struct {
	raw    *redis.Client
	prefix string
}

func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	rdb, err := redis.NewRedisConnection(redis.ConnectionInfo{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisClient{
		raw:    rdb,
		prefix: prefix,
	}, nil
}

func (c *RedisClient) Close() {
	if c.raw == nil {
		return
	}
	redis.Close(c.raw)
}

func (c *RedisClient) withPrefix(key string) string {
	return c.prefix + key
}

// SaveTracked writes key with a TTL and adds it to the index set in one
// round trip. The index expires with its newest member.
func (c *RedisClient) SaveTracked(ctx context.Context, setKey, key string, value any, ttl time.Duration) error {
	_, err := c.raw.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.withPrefix(key), value, ttl)
		pipe.SAdd(ctx, c.withPrefix(setKey), key)
		pipe.Expire(ctx, c.withPrefix(setKey), ttl)
		return nil
	})
	return err
}

// Get reports found=false for a missing or expired key.
func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.raw.Get(ctx, c.withPrefix(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisClient) Members(ctx context.Context, setKey string) ([]string, error) {
	return c.raw.SMembers(ctx, c.withPrefix(setKey)).Result()
}

// Forget drops expired keys from the index set.
func (c *RedisClient) Forget(ctx context.Context, setKey string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return c.raw.SRem(ctx, c.withPrefix(setKey), members...).Err()
}
