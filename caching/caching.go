// Package caching holds the result cache the completion path writes
// through. Redis in production, Null wherever Redis is absent.
package caching

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type CachingService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RedisCachingService struct {
	client *redis.Client
}

func NewRedisCachingService(client *redis.Client) *RedisCachingService {
	return &RedisCachingService{client: client}
}

func (c *RedisCachingService) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *RedisCachingService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCachingService) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// NullCachingService misses on every read and swallows writes.
type NullCachingService struct{}

func NewNullCachingService() *NullCachingService {
	return &NullCachingService{}
}

func (c *NullCachingService) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (c *NullCachingService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (c *NullCachingService) Delete(ctx context.Context, key string) error {
	return nil
}
