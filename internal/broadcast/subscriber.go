package broadcast

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSlowSubscriber is returned by ChannelSubscriber.Send when its buffer is full.
	ErrSlowSubscriber = errors.New("subscriber buffer full")
	// ErrSubscriberClosed is returned by ChannelSubscriber.Send after Close.
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// ChannelSubscriber buffers payloads on a bounded channel. Send never blocks.
type ChannelSubscriber struct {
	id   string
	ch   chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	dropErr error
}

func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSubscriber{
		id:   uuid.NewString(),
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *ChannelSubscriber) ID() string { return s.id }

func (s *ChannelSubscriber) Send(payload []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}

	select {
	case s.ch <- payload:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// C returns the outbound payload channel. It is never closed; watch Done.
func (s *ChannelSubscriber) C() <-chan []byte { return s.ch }

func (s *ChannelSubscriber) Done() <-chan struct{} { return s.done }

func (s *ChannelSubscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// Drop closes the subscriber and records why the registry gave up on it.
func (s *ChannelSubscriber) Drop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.dropErr = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Err returns the reason passed to Drop, or nil after a plain Close.
func (s *ChannelSubscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropErr
}
