package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketstream/internal/model"
	"marketstream/pkg/storage"
)

var errTradeNotPersisted = errors.New("memory: individual trades are not persisted")

// Record is one appended event together with its server-side creation time.
type Record struct {
	Event     model.Event
	CreatedAt time.Time
}

// MemoryStore is an in-process durable store, used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make([]Record, 0),
	}
}

func (m *MemoryStore) Append(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Kind() == model.KindTrade {
		return errTradeNotPersisted
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, Record{Event: ev, CreatedAt: time.Now().UTC()})
	return nil
}

// Records returns a copy of every stored record in append order.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid race
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Count returns the number of records of the given kind.
func (m *MemoryStore) Count(kind model.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Event.Kind() == kind {
			n++
		}
	}
	return n
}

func (m *MemoryStore) LatestLiquidation(ctx context.Context, symbol model.Symbol) (model.ForcedLiquidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if liq, ok := m.records[i].Event.(model.ForcedLiquidation); ok && liq.Symbol == symbol {
			return liq, nil
		}
	}
	return model.ForcedLiquidation{}, storage.ErrNotFound
}

func (m *MemoryStore) Close() error { return nil }

var _ storage.Store = (*MemoryStore)(nil)
