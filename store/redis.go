package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const chunkKeyNamespace = "chunk:"

// RedisChunkStoreImpl is the embedded low-latency chunk tier. Chunk
// values carry a TTL as a backstop behind the lazy session sweep.
type RedisChunkStoreImpl struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisChunkStoreImpl(client *redis.Client, ttl time.Duration) *RedisChunkStoreImpl {
	return &RedisChunkStoreImpl{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisChunkStoreImpl) IsReady(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisChunkStoreImpl) Name() string {
	return "ChunkStore[redis]"
}

func (s *RedisChunkStoreImpl) Put(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, chunkKeyNamespace+key, data, s.ttl).Err()
}

func (s *RedisChunkStoreImpl) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, chunkKeyNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisChunkStoreImpl) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, chunkKeyNamespace+prefix+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}
	return nil
}
