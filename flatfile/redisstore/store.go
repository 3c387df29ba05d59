// Package redisstore provides a Redis-backed storage adapter for flatfile.
//
// Objects are stored as plain string values. Streams read them with
// GETRANGE, one command per read-ahead block, and size them with STRLEN.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"go.uber.org/zap"

	"github.com/justapithecus/flatfile/flatfile"
)

// scanCount is the COUNT hint passed to SCAN while listing.
const scanCount = 512

// API defines the subset of the go-redis client used by the store.
// *redis.Client satisfies it.
type API interface {
	Get(key string) *redis.StringCmd
	GetRange(key string, start, end int64) *redis.StringCmd
	StrLen(key string) *redis.IntCmd
	SetNX(key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(keys ...string) *redis.IntCmd
	Del(keys ...string) *redis.IntCmd
	Scan(cursor uint64, match string, count int64) *redis.ScanCmd
}

// Config holds configuration for the Redis store.
type Config struct {
	// Prefix namespaces every key, e.g. "flatfile:". Optional.
	Prefix string

	// Logger receives range-read diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// ClientConfig holds connection settings for NewClient.
type ClientConfig struct {
	// Addr is the host:port of the Redis server (required).
	Addr string

	// Password is optional.
	Password string

	// DB selects the logical database.
	DB int

	// DialTimeout bounds connection setup. Zero uses the go-redis default.
	DialTimeout time.Duration
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(cfg ClientConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redisstore: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Store implements flatfile.Store and flatfile.RangeReader on Redis.
type Store struct {
	client API
	prefix string
	logger *zap.Logger
}

// New creates a Redis store over client.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Put stores data at key. Returns ErrPathExists if the key is taken.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("redisstore: reading data: %w", err)
	}

	ok, err := s.client.SetNX(fullKey, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: setnx: %w", err)
	}
	if !ok {
		return flatfile.ErrPathExists
	}
	return nil
}

// Get returns the whole value at key.
// Returns ErrNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}
	val, err := s.client.Get(fullKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, flatfile.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get: %w", err)
	}
	return io.NopCloser(strings.NewReader(val)), nil
}

// Exists checks whether key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return false, err
	}
	return s.exists(fullKey)
}

func (s *Store) exists(fullKey string) (bool, error) {
	n, err := s.client.Exists(fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: exists: %w", err)
	}
	return n > 0, nil
}

// List returns all keys under prefix, relative to the store prefix.
// SCAN may report a key twice; duplicates are removed.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return nil, err
	}
	match := escapeGlob(fullPrefix) + "*"

	seen := make(map[string]bool)
	var keys []string
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, next, err := s.client.Scan(cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: scan: %w", err)
		}
		for _, k := range batch {
			rel := strings.TrimPrefix(k, s.prefix)
			if !seen[rel] {
				seen[rel] = true
				keys = append(keys, rel)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// Delete removes key if it exists.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(fullKey).Err(); err != nil {
		return fmt.Errorf("redisstore: del: %w", err)
	}
	return nil
}

// Stat returns the length of the value at key.
// Returns ErrNotFound if the key does not exist.
func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return 0, err
	}
	// STRLEN reports 0 for missing keys.
	ok, err := s.exists(fullKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, flatfile.ErrNotFound
	}
	n, err := s.client.StrLen(fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: strlen: %w", err)
	}
	return n, nil
}

// ReadRange reads up to length bytes at offset with GETRANGE.
// Ranges past the end return the available bytes, or an empty slice.
func (s *Store) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset > math.MaxInt64-length {
		return nil, flatfile.ErrInvalidPath
	}
	if length == 0 {
		return []byte{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	// GETRANGE bounds are inclusive.
	end := offset + length - 1
	s.logger.Debug("range read", zap.String("key", fullKey), zap.Int64("start", offset), zap.Int64("end", end))
	val, err := s.client.GetRange(fullKey, offset, end).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: getrange: %w", err)
	}
	return []byte(val), nil
}

func (s *Store) validateKey(key string) (string, error) {
	if key == "" {
		return "", flatfile.ErrInvalidPath
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", flatfile.ErrInvalidPath
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", flatfile.ErrInvalidPath
	}
	return s.prefix + cleaned, nil
}

func (s *Store) validatePrefix(prefix string) (string, error) {
	if prefix == "" {
		return s.prefix, nil
	}
	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", flatfile.ErrInvalidPath
	}
	if cleaned == "." {
		return s.prefix, nil
	}
	return s.prefix + strings.TrimPrefix(cleaned, "/"), nil
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	_ flatfile.Store       = (*Store)(nil)
	_ flatfile.RangeReader = (*Store)(nil)
	_ API                  = (*redis.Client)(nil)
)
