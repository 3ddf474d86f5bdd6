package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBucket is a Bucket backed by Redis string keys under a common prefix
type RedisBucket struct {
	client *redis.Client
	prefix string
}

var _ Bucket = (*RedisBucket)(nil)

// ConnectRedis builds a client from a redis:// URL or a bare host:port
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisBucket wraps client; every key is stored as prefix+key
func NewRedisBucket(client *redis.Client, prefix string) *RedisBucket {
	return &RedisBucket{client: client, prefix: prefix}
}

func (b *RedisBucket) Write(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, b.prefix+key, data, 0).Err()
}

// WriteIfAbsent uses SETNX
func (b *RedisBucket) WriteIfAbsent(ctx context.Context, key string, data []byte) error {
	ok, err := b.client.SetNX(ctx, b.prefix+key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrObjectExists
	}
	return nil
}

func (b *RedisBucket) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

func (b *RedisBucket) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefix+key).Err()
}

// Keys walks the keyspace with SCAN so large buckets never block the server
func (b *RedisBucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(b.prefix+prefix) + "*"
	var keys []string
	iter := b.client.Scan(ctx, 0, match, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", match, err)
	}
	return keys, nil
}

func (b *RedisBucket) Close() error {
	return b.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
