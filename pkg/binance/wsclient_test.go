package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newWSServer starts a test server running handle for every upgraded connection
// and returns its ws:// URL.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readSubscribe(t *testing.T, conn *websocket.Conn) subscribeRequest {
	var req subscribeRequest
	assert.NoError(t, conn.ReadJSON(&req))
	return req
}

// go test -v --run TestStreamFramesThenGracefulClose
func TestStreamFramesThenGracefulClose(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		req := readSubscribe(t, conn)
		assert.Equal(t, "SUBSCRIBE", req.Method)
		assert.Equal(t, []string{"btcusdt@depth", "btcusdt@trade"}, req.Params)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{}}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// wait for the client's close reply
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewWSClient(WSOptions{URL: url, DialTimeout: time.Second}, zap.NewNop())
	stream, err := client.Connect(context.Background(), []string{"btcusdt@depth", "btcusdt@trade"})
	require.NoError(t, err)
	defer stream.Close()

	frame, err := stream.Next()
	require.NoError(t, err)
	require.JSONEq(t, `{"result":null,"id":1}`, string(frame))

	frame, err = stream.Next()
	require.NoError(t, err)
	require.Contains(t, string(frame), "btcusdt@trade")

	_, err = stream.Next()
	var fault *ConnectionFault
	require.True(t, errors.As(err, &fault), "expected ConnectionFault, got %v", err)
	require.True(t, fault.Graceful)

	// not restartable
	_, err = stream.Next()
	require.ErrorIs(t, err, ErrStreamClosed)
}

// go test -v --run TestStreamReadTimeout
func TestStreamReadTimeout(t *testing.T) {
	release := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		// never read again, so pings go unanswered
		<-release
	})
	t.Cleanup(func() { close(release) })

	client := NewWSClient(WSOptions{
		URL:          url,
		PingInterval: 50 * time.Millisecond,
		GraceWindow:  50 * time.Millisecond,
	}, zap.NewNop())
	stream, err := client.Connect(context.Background(), []string{"btcusdt@depth"})
	require.NoError(t, err)
	defer stream.Close()

	start := time.Now()
	_, err = stream.Next()
	var fault *ConnectionFault
	require.True(t, errors.As(err, &fault), "expected ConnectionFault, got %v", err)
	require.False(t, fault.Graceful)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

// go test -v --run TestStreamContextCancel
func TestStreamContextCancel(t *testing.T) {
	release := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		<-release
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	client := NewWSClient(WSOptions{URL: url}, zap.NewNop())
	stream, err := client.Connect(ctx, []string{"btcusdt@depth"})
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = stream.Next()
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsConnectionFault(err))
}

// go test -v --run TestConnectNoStreams
func TestConnectNoStreams(t *testing.T) {
	client := NewWSClient(WSOptions{URL: "ws://127.0.0.1:1"}, zap.NewNop())
	_, err := client.Connect(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoStreams)
}

// go test -v --run TestConnectDialFailure
func TestConnectDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	client := NewWSClient(WSOptions{URL: url, DialTimeout: time.Second}, zap.NewNop())
	_, err := client.Connect(context.Background(), []string{"btcusdt@depth"})

	var fault *ConnectionFault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, "dial", fault.Op)
}
