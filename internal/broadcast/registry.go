package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"marketstream/internal/metrics"
	"marketstream/internal/model"

	"go.uber.org/zap"
)

// Subscriber receives serialized events. Send must not block for long;
// an error marks the subscriber for removal.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Dropper is implemented by subscribers that need to know they were dropped
// after a failed send.
type Dropper interface {
	Drop(err error)
}

// DeliveryFault reports a failed send to one subscriber.
type DeliveryFault struct {
	SubscriberID string
	Symbol       model.Symbol
	Err          error
}

func (f *DeliveryFault) Error() string {
	return fmt.Sprintf("deliver %s to subscriber %s: %v", f.Symbol, f.SubscriberID, f.Err)
}

func (f *DeliveryFault) Unwrap() error { return f.Err }

// Envelope is the message pushed to subscribers.
type Envelope struct {
	Type   model.Kind   `json:"type"`
	Symbol model.Symbol `json:"symbol"`
	Data   model.Event  `json:"data"`
}

type removal struct {
	symbol model.Symbol
	sub    Subscriber
}

// Registry tracks subscribers per symbol and fans events out to them.
type Registry struct {
	mu   sync.RWMutex
	subs map[model.Symbol]map[string]Subscriber

	pendingMu sync.Mutex
	pending   []removal

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		subs:    make(map[model.Symbol]map[string]Subscriber),
		logger:  logger.Named("broadcast"),
		metrics: m,
	}
}

// Subscribe registers sub for symbol. Subscribing twice is harmless.
func (r *Registry) Subscribe(symbol model.Symbol, sub Subscriber) {
	r.applyRemovals()

	r.mu.Lock()
	set, ok := r.subs[symbol]
	if !ok {
		set = make(map[string]Subscriber)
		r.subs[symbol] = set
	}
	set[sub.ID()] = sub
	r.mu.Unlock()

	r.updateGauge()
}

// Unsubscribe removes sub from symbol. It is a no-op when sub is not registered.
func (r *Registry) Unsubscribe(symbol model.Symbol, sub Subscriber) {
	r.mu.Lock()
	r.removeLocked(symbol, sub)
	r.mu.Unlock()

	r.updateGauge()
}

// UnsubscribeAll removes sub from every symbol.
func (r *Registry) UnsubscribeAll(sub Subscriber) {
	r.mu.Lock()
	for symbol := range r.subs {
		r.removeLocked(symbol, sub)
	}
	r.mu.Unlock()

	r.updateGauge()
}

// Clear drops every entry for the given symbols, or for all symbols when none are given.
func (r *Registry) Clear(symbols ...model.Symbol) {
	r.mu.Lock()
	if len(symbols) == 0 {
		r.subs = make(map[model.Symbol]map[string]Subscriber)
	}
	for _, s := range symbols {
		delete(r.subs, s)
	}
	r.mu.Unlock()

	r.updateGauge()
}

// Count returns the number of subscribers registered for symbol.
func (r *Registry) Count(symbol model.Symbol) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[symbol])
}

// Total returns the number of (symbol, subscriber) entries.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}

// Broadcast sends ev to every subscriber of symbol. The envelope is encoded
// once. Failed subscribers are told through Dropper, then queued and removed
// on the next Broadcast or Subscribe call. Broadcasting to nobody is a no-op.
func (r *Registry) Broadcast(symbol model.Symbol, ev model.Event) error {
	r.applyRemovals()

	r.mu.RLock()
	set := r.subs[symbol]
	targets := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	payload, err := json.Marshal(Envelope{Type: ev.Kind(), Symbol: symbol, Data: ev})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}

	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			fault := &DeliveryFault{SubscriberID: sub.ID(), Symbol: symbol, Err: err}
			r.logger.Warn("dropping subscriber", zap.Error(fault))
			r.metrics.DeliveryFault()
			if d, ok := sub.(Dropper); ok {
				d.Drop(fault)
			}

			r.pendingMu.Lock()
			r.pending = append(r.pending, removal{symbol: symbol, sub: sub})
			r.pendingMu.Unlock()
		}
	}
	return nil
}

func (r *Registry) applyRemovals() {
	r.pendingMu.Lock()
	pending := r.pending
	r.pending = nil
	r.pendingMu.Unlock()

	if len(pending) == 0 {
		return
	}

	r.mu.Lock()
	for _, rm := range pending {
		r.removeLocked(rm.symbol, rm.sub)
	}
	r.mu.Unlock()

	r.updateGauge()
}

// removeLocked deletes sub only if the registered entry is that same handle.
func (r *Registry) removeLocked(symbol model.Symbol, sub Subscriber) {
	set, ok := r.subs[symbol]
	if !ok {
		return
	}
	if cur, ok := set[sub.ID()]; ok && cur == sub {
		delete(set, sub.ID())
	}
	if len(set) == 0 {
		delete(r.subs, symbol)
	}
}

func (r *Registry) updateGauge() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetSubscribers(r.Total())
}
