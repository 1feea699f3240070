package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketstream/config"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is an expiring key-value snapshot store. Set always replaces the
// previous value of key.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// New opens the backend selected by cfg.Backend.
func New(cfg config.CacheConfig, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "redis":
		store, err = NewRedisStore(cfg.RedisURL)
	case "badger":
		store, err = NewBadgerStore(cfg.BadgerDir, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
