package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStorageBackend stores JSON encoded entries under prefixed keys.
type redisStorageBackend struct {
	client    *redis.Client
	ownClient bool
	prefix    string
}

var _ storageBackend = &redisStorageBackend{}

func newRedisStorageBackend(opts *redisOptions, prefix string) (*redisStorageBackend, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis storage is not configured")
	}
	b := &redisStorageBackend{client: opts.client, prefix: prefix}
	if b.client == nil {
		if opts.addr == "" {
			return nil, fmt.Errorf("redis storage address is required")
		}
		b.client = redis.NewClient(&redis.Options{Addr: opts.addr, DB: opts.db})
		b.ownClient = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		if b.ownClient {
			_ = b.client.Close()
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return b, nil
}

func (b *redisStorageBackend) get(ctx context.Context, key string) (*Entry, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached entry: %w", err)
	}
	return &entry, nil
}

func (b *redisStorageBackend) set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached entry: %w", err)
	}
	if err := b.client.Set(ctx, b.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *redisStorageBackend) delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *redisStorageBackend) clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *redisStorageBackend) close() error {
	if !b.ownClient {
		return nil
	}
	return b.client.Close()
}
