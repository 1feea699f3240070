package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"go.uber.org/zap"
)

// BadgerStore is an embedded cache backend. Expiry uses badger entry TTLs,
// which have one-second resolution.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBadgerStore opens a store under dir, or an in-memory store when dir is empty.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	isInMemory := len(dir) <= 0

	var dbDir string
	if !isInMemory {
		dbDir = filepath.Join(dir, "cache")
	}
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = badgerLogger{logger.Named("badger").Sugar()}

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	s := &BadgerStore{db: db, logger: logger, stop: make(chan struct{})}
	if !isInMemory {
		s.wg.Add(1)
		go s.gcLoop(30 * time.Minute)
	}
	return s, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}

func (s *BadgerStore) gcLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Error("value log gc failed", zap.Error(err))
			}
		}
	}
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
