package binance

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSOptions configures the upstream stream connection.
type WSOptions struct {
	URL          string        // combined stream endpoint, e.g. wss://fstream.binance.com/stream
	DialTimeout  time.Duration // handshake timeout
	PingInterval time.Duration // keepalive ping period
	GraceWindow  time.Duration // extra slack on top of PingInterval before a read times out
}

func (o WSOptions) readTimeout() time.Duration {
	return o.PingInterval + o.GraceWindow
}

// WSClient dials the Binance combined stream endpoint. It holds no connection
// state itself; each Connect returns an independent Stream.
type WSClient struct {
	opts   WSOptions
	dialer *websocket.Dialer
	logger *zap.Logger
	reqID  atomic.Uint64
}

// NewWSClient creates a new WebSocket client with the given options and logger.
func NewWSClient(opts WSOptions, logger *zap.Logger) *WSClient {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 10 * time.Second
	}
	dialer := *websocket.DefaultDialer
	if opts.DialTimeout > 0 {
		dialer.HandshakeTimeout = opts.DialTimeout
	}
	return &WSClient{
		opts:   opts,
		dialer: &dialer,
		logger: logger.Named("binance-ws"),
	}
}

type subscribeRequest struct {
	Method string   `json:"method"` // "SUBSCRIBE"
	Params []string `json:"params"` // stream names, e.g. "btcusdt@depth"
	ID     uint64   `json:"id"`     // echoed back in the acknowledgement
}

// Connect establishes the WebSocket connection and subscribes to the given
// streams. The returned Stream lives until ctx is cancelled, Close is called,
// or the connection fails.
func (c *WSClient) Connect(ctx context.Context, streams []string) (*Stream, error) {
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}

	// Attempt to connect to the WebSocket server
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, &ConnectionFault{Op: "dial", Err: err}
	}
	c.logger.Info("WebSocket connected", zap.String("url", c.opts.URL), zap.Int("streams", len(streams)))

	subMsg := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     c.reqID.Add(1),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.readTimeout()))
	if err := conn.WriteJSON(subMsg); err != nil {
		_ = conn.Close()
		return nil, &ConnectionFault{Op: "subscribe", Err: err}
	}
	_ = conn.SetWriteDeadline(time.Time{})

	return newStream(ctx, conn, c.opts, c.logger), nil
}

// Stream is a lazy, infinite sequence of raw frames from one connection.
// It is not restartable: once Next has returned an error every later call
// returns ErrStreamClosed.
type Stream struct {
	conn   *websocket.Conn
	opts   WSOptions
	logger *zap.Logger
	ctx    context.Context

	stopWatch func() bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	failed  bool
	pingErr error
}

func newStream(ctx context.Context, conn *websocket.Conn, opts WSOptions, logger *zap.Logger) *Stream {
	s := &Stream{
		conn:   conn,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		done:   make(chan struct{}),
	}

	// Any inbound pong counts as liveness.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.readTimeout()))
	})

	s.stopWatch = context.AfterFunc(ctx, func() { _ = conn.Close() })

	s.wg.Add(1)
	go s.pingLoop()
	return s
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.GraceWindow)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.mu.Lock()
				s.pingErr = err
				s.mu.Unlock()
				s.logger.Warn("ping failed, closing connection", zap.Error(err))
				_ = s.conn.Close()
				return
			}
		}
	}
}

// Next blocks until the next text/binary frame arrives.
// Connection problems are returned as *ConnectionFault; cancellation of the
// stream's context is returned as the context error.
func (s *Stream) Next() ([]byte, error) {
	s.mu.Lock()
	failed := s.failed
	s.mu.Unlock()
	if failed {
		return nil, ErrStreamClosed
	}

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.readTimeout())); err != nil {
			return nil, s.fail(&ConnectionFault{Op: "read", Err: err})
		}
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.fail(s.classify(err))
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return msg, nil
	}
}

func (s *Stream) classify(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.mu.Lock()
	pingErr := s.pingErr
	s.mu.Unlock()
	if pingErr != nil {
		return &ConnectionFault{Op: "ping", Err: pingErr}
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return &ConnectionFault{Op: "read", Graceful: true, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectionFault{Op: "read", Err: errReadTimeout{after: s.opts.readTimeout(), err: err}}
	}
	return &ConnectionFault{Op: "read", Err: err}
}

func (s *Stream) fail(err error) error {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
	s.Close()
	return err
}

// Close sends a normal close frame, releases the connection and stops the
// keepalive goroutine. It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stopWatch()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
		s.wg.Wait()

		s.mu.Lock()
		s.failed = true
		s.mu.Unlock()
	})
}

type errReadTimeout struct {
	after time.Duration
	err   error
}

func (e errReadTimeout) Error() string {
	return "no frame received within " + e.after.String() + ": " + e.err.Error()
}

func (e errReadTimeout) Unwrap() error { return e.err }
