package kv

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBackend persists the whole map as a single Redis string value, so
// several processes can open a Store over the same key.
type RedisBackend struct {
	Client *redis.Client
	Key    string
}

func NewRedisBackend(addr, key string) *RedisBackend {
	return &RedisBackend{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Key:    key,
	}
}

func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisBackend) Save(ctx context.Context, data []byte) error {
	return r.Client.Set(ctx, r.Key, data, 0).Err()
}
