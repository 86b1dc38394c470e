package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the cache between server replicas
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})}
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, namespace+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *RedisStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, namespace+":"+key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = namespace + ":" + k
	}
	return r.client.Del(ctx, full...).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
