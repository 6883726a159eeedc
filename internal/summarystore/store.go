// Package summarystore caches generated summaries keyed by the hash of the
// normalized dialogue.
package summarystore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Entry is one cached summary.
type Entry struct {
	Key       string    `json:"key"`
	Summary   string    `json:"summary"`
	Runtime   string    `json:"runtime"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for caching summaries.
type Store interface {
	// Get returns the entry for key. The bool is false on a miss.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry Entry) error

	// Prune removes entries created before olderThan and returns how many
	// were removed.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL is how long entries stay valid. Zero keeps them forever.
	TTL time.Duration
}

// Open creates the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath, opts.TTL)
	case BackendRedis:
		return NewRedisStore(ctx, &RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			TTL:      opts.TTL,
		})
	case BackendNone, "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", opts.Backend)
	}
}

// NopStore caches nothing.
type NopStore struct{}

// Get always misses.
func (NopStore) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

// Put discards the entry.
func (NopStore) Put(context.Context, Entry) error { return nil }

// Prune has nothing to remove.
func (NopStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }

// Close does nothing.
func (NopStore) Close() error { return nil }
