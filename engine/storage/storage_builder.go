package storage

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StorageBuilderOption is a functional option for configuring a Storage during construction.
type StorageBuilderOption func(*storage)

type redisOptions struct {
	client *redis.Client
	addr   string
	db     int
}

// WithLogger sets the logger used by the storage.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - StorageBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) StorageBuilderOption {
	return func(s *storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTTL sets how long entries live. Zero keeps entries until they are deleted.
//
// Parameters:
//   - ttl: the entry lifetime
//
// Returns:
//   - StorageBuilderOption: functional option to set the TTL
func WithTTL(ttl time.Duration) StorageBuilderOption {
	return func(s *storage) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the prefix of Redis keys.
//
// Parameters:
//   - prefix: the key prefix
//
// Returns:
//   - StorageBuilderOption: functional option to set the prefix
func WithKeyPrefix(prefix string) StorageBuilderOption {
	return func(s *storage) {
		s.prefix = prefix
	}
}

// WithMaxEntries bounds the memory backend. The least recently used entry is evicted first.
//
// Parameters:
//   - n: the maximum number of entries, zero for unbounded
//
// Returns:
//   - StorageBuilderOption: functional option to set the bound
func WithMaxEntries(n int) StorageBuilderOption {
	return func(s *storage) {
		s.maxItems = n
	}
}

// WithRedisClient uses an existing Redis client. The storage does not close it.
//
// Parameters:
//   - client: the Redis client
//
// Returns:
//   - StorageBuilderOption: functional option to set the client
func WithRedisClient(client *redis.Client) StorageBuilderOption {
	return func(s *storage) {
		s.redisOpts = &redisOptions{client: client}
	}
}

// WithRedisAddr connects to Redis at addr using database db.
//
// Parameters:
//   - addr: the host:port of the server
//   - db: the database number
//
// Returns:
//   - StorageBuilderOption: functional option to set the address
func WithRedisAddr(addr string, db int) StorageBuilderOption {
	return func(s *storage) {
		s.redisOpts = &redisOptions{addr: addr, db: db}
	}
}

// WithSQLitePath sets the database file of the SQLite backend.
//
// Parameters:
//   - path: the database file path, ":memory:" for a private in-memory database
//
// Returns:
//   - StorageBuilderOption: functional option to set the path
func WithSQLitePath(path string) StorageBuilderOption {
	return func(s *storage) {
		s.sqlPath = path
	}
}
