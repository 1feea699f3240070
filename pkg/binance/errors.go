package binance

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is returned by Stream.Next after the stream has already failed or been closed.
	ErrStreamClosed = errors.New("binance: stream closed")
	// ErrNoStreams is returned when Connect is called without stream names.
	ErrNoStreams = errors.New("binance: no streams to subscribe")
)

// ConnectionFault reports a lost, refused or timed-out upstream connection.
// It is always transient from the transport's point of view; the caller owns retry.
type ConnectionFault struct {
	Op       string // "dial", "subscribe", "read" or "ping"
	Graceful bool   // remote side closed with a normal/going-away close frame
	Err      error
}

func (f *ConnectionFault) Error() string {
	if f.Graceful {
		return fmt.Sprintf("binance: %s: connection closed by remote: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("binance: %s: %v", f.Op, f.Err)
}

func (f *ConnectionFault) Unwrap() error { return f.Err }

// IsConnectionFault reports whether err wraps a *ConnectionFault.
func IsConnectionFault(err error) bool {
	var fault *ConnectionFault
	return errors.As(err, &fault)
}

// APIError is an error body returned by the REST API, e.g. {"code":-1121,"msg":"Invalid symbol."}.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance error: status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
}
