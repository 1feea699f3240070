package memorystore

import (
	"sync"

	"marketstream/internal/model"
)

// MemorySymbolStore holds the current set of tradable symbols in insertion order.
type MemorySymbolStore struct {
	mu      sync.Mutex
	symbols []model.Symbol
	seen    map[model.Symbol]struct{}
}

func NewSymbolStore() *MemorySymbolStore {
	return &MemorySymbolStore{
		symbols: make([]model.Symbol, 0),
		seen:    make(map[model.Symbol]struct{}),
	}
}

// Add appends symbol unless it is already present.
func (s *MemorySymbolStore) Add(symbol model.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[symbol]; ok {
		return
	}
	s.seen[symbol] = struct{}{}
	s.symbols = append(s.symbols, symbol)
}

// Replace swaps the whole set, e.g. after a daily refresh.
func (s *MemorySymbolStore) Replace(symbols []model.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = make([]model.Symbol, 0, len(symbols))
	s.seen = make(map[model.Symbol]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, ok := s.seen[sym]; ok {
			continue
		}
		s.seen[sym] = struct{}{}
		s.symbols = append(s.symbols, sym)
	}
}

// StartWorker drains ch into the store. The returned channel is closed once ch is closed.
func (s *MemorySymbolStore) StartWorker(ch <-chan model.Symbol) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for symbol := range ch {
			s.Add(symbol)
		}
	}()
	return done
}

func (s *MemorySymbolStore) GetAll() []model.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Symbol, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *MemorySymbolStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}
