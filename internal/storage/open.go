package storage

import (
	"context"
	"fmt"

	"github.com/rezonia/facturx/internal/config"
)

// Open builds the Gateway selected by cfg.Type
func Open(ctx context.Context, cfg config.StorageConfig) (Gateway, error) {
	switch cfg.Type {
	case config.StorageLocal, "":
		return NewLocal(cfg.Dir)
	case config.StorageMemory:
		return NewObjectStore(NewMemoryBucket()), nil
	case config.StorageGCS:
		bucket, err := NewGCSBucket(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		return NewObjectStore(bucket), nil
	case config.StorageRedis:
		client, err := ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewObjectStore(NewRedisBucket(client, cfg.RedisKeyPrefix)), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
