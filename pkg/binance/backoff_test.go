package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestBackoffNext
func TestBackoffNext(t *testing.T) {
	b := DefaultBackoff()

	require.Equal(t, 5*time.Second, b.Next(0))
	require.Equal(t, 5*time.Second, b.Next(1))
	require.Equal(t, 10*time.Second, b.Next(2))
	require.Equal(t, 20*time.Second, b.Next(3))
	require.Equal(t, 40*time.Second, b.Next(4))
	require.Equal(t, 60*time.Second, b.Next(5))
	require.Equal(t, 60*time.Second, b.Next(50))
}

// go test -v --run TestBackoffExhausted
func TestBackoffExhausted(t *testing.T) {
	b := DefaultBackoff()

	require.False(t, b.Exhausted(5))
	require.True(t, b.Exhausted(6))

	b.MaxRetries = 0
	require.True(t, b.Exhausted(1))
}

// go test -v --run TestBackoffSanitizes
func TestBackoffSanitizes(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Millisecond}

	require.Equal(t, 100*time.Millisecond, b.Next(1))
	require.Equal(t, 100*time.Millisecond, b.Next(3))
}
