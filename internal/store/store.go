// Package store is the key/value blob store the assistant persists its
// settings and flags in. Values are opaque bytes (JSON in practice) with an
// optional time to live.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Store is a key/value blob store. A zero ttl means the value never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "memory":
		s = NewMemory()
	case "redis":
		s, err = NewRedis(ctx, cfg.RedisURL)
	case "sqlite":
		s, err = NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Namespace != "" {
		s = WithPrefix(s, cfg.Namespace+":")
	}
	return s, nil
}

// GetJSON decodes the value at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v at key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

type prefixed struct {
	Store
	prefix string
}

// WithPrefix namespaces every key of s.
func WithPrefix(s Store, prefix string) Store {
	return prefixed{Store: s, prefix: prefix}
}

func (p prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.Store.Set(ctx, p.prefix+key, value, ttl)
}

func (p prefixed) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.prefix+key)
}
