package binance

import "time"

// Backoff describes the reconnect delay schedule: Min, Min*Factor, ... capped at Max,
// with at most MaxRetries consecutive attempts before the fault is considered fatal.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Factor     float64
	MaxRetries int
}

// DefaultBackoff returns 5s doubling up to 60s, five retries.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:        5 * time.Second,
		Max:        60 * time.Second,
		Factor:     2.0,
		MaxRetries: 5,
	}
}

// Next returns the delay before the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = time.Second
	}
	max := b.Max
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next >= max {
			return max
		}
		wait = next
	}
	return wait
}

// Exhausted reports whether attempt exceeds the retry budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.MaxRetries
}
