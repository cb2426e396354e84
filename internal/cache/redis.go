package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps JSON-encoded entries in redis so the cache survives
// restarts. Keys expire after the retention window; freshness is still
// decided by the Cache TTL.
type RedisStore[V any] struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix    string
	retention time.Duration
}

func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore[V any](rdb redis.UniversalClient, opts ...RedisOption) *RedisStore[V] {
	o := redisOptions{prefix: "matchbot:cache", retention: 24 * time.Hour}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore[V]{rdb: rdb, prefix: o.prefix, retention: o.retention}
}

func (s *RedisStore[V]) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e Entry[V]
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry[V]{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, e Entry[V]) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.key(key), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// NewRedisClient builds a client and checks connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
