// Package cache stores vendor API responses so repeated lookups within the TTL
// do not spend rate limit or quota.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Cache is a typed key/value store with per-entry expiry
type Cache interface {
	// Get decodes the cached value into out. The bool reports a hit.
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// New builds the backend selected in the cache configuration
func New(cfg config.CacheData, logger *zap.SugaredLogger) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		logger.Debug("using in-memory response cache")
		return NewMemoryCache(), nil
	case "none":
		return Nop{}, nil
	case "redis":
		c, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		logger.Infof("using redis response cache at %s", cfg.RedisAddr)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// encode and decode use the json tags so cached structs match the API types
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("error encoding cache entry: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(b []byte, out any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("error decoding cache entry: %w", err)
	}
	return nil
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache keeps encoded entries in process memory
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := decode(e.data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key. A ttl of zero never expires.
func (m *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error {
	return nil
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Close() error                                           { return nil }
