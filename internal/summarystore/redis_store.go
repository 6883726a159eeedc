package summarystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces summary keys.
const DefaultRedisPrefix = "dialoguesum:summary:"

// RedisStore implements Store using Redis. Expiry is left to key TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for the summary cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore connects to Redis and checks the connection with PING.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = &RedisConfig{}
	}
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.Prefix == "" {
		config.Prefix = DefaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get loads an entry from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to load summary: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode summary: %w", err)
	}
	return entry, true, nil
}

// Put stores an entry with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return fmt.Errorf("entry key cannot be empty")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := s.client.Set(ctx, s.key(entry.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// Prune is a no-op; Redis expires keys on its own.
func (s *RedisStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
