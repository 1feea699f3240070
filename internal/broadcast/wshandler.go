package broadcast

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"marketstream/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Request is a client control message, e.g. {"op":"subscribe","symbols":["BTCUSDT"]}.
type Request struct {
	Op      string   `json:"op"` // "subscribe" or "unsubscribe"
	Symbols []string `json:"symbols"`
}

// Response acknowledges a Request.
type Response struct {
	Op      string         `json:"op"`
	Symbols []model.Symbol `json:"symbols,omitempty"`
	Status  string         `json:"status"` // "ok" or "error"
	Error   string         `json:"error,omitempty"`
}

type HandlerOptions struct {
	SendBuffer   int           // per-connection outbound queue
	PingInterval time.Duration // server ping period
	WriteWait    time.Duration // deadline for a single write
}

// WSHandler upgrades HTTP requests to WebSocket subscriber connections.
// Symbols may be preselected with ?symbols=BTCUSDT,ETHUSDT.
type WSHandler struct {
	registry *Registry
	opts     HandlerOptions
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(registry *Registry, opts HandlerOptions, logger *zap.Logger) *WSHandler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	return &WSHandler{
		registry: registry,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("ws-handler"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	sub := NewChannelSubscriber(h.opts.SendBuffer)
	log := h.logger.With(zap.String("subscriber", sub.ID()), zap.String("remote", r.RemoteAddr))
	log.Info("subscriber connected")

	defer func() {
		h.registry.UnsubscribeAll(sub)
		sub.Close()
		_ = conn.Close()
		log.Info("subscriber disconnected")
	}()

	if q := r.URL.Query().Get("symbols"); q != "" {
		h.handle(sub, Request{Op: "subscribe", Symbols: strings.Split(q, ",")})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, sub, log)
	}()

	h.readLoop(conn, sub)
	sub.Close()
	<-writerDone
}

func (h *WSHandler) readLoop(conn *websocket.Conn, sub *ChannelSubscriber) {
	readTimeout := h.opts.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handle(sub, req)
	}
}

// handle applies req and queues the acknowledgement on the subscriber.
func (h *WSHandler) handle(sub *ChannelSubscriber, req Request) {
	symbols, err := model.ParseSymbols(req.Symbols)
	resp := Response{Op: req.Op, Symbols: symbols, Status: "ok"}

	switch {
	case err != nil:
		resp.Status, resp.Error = "error", err.Error()
	case req.Op == "subscribe":
		for _, s := range symbols {
			h.registry.Subscribe(s, sub)
		}
	case req.Op == "unsubscribe":
		for _, s := range symbols {
			h.registry.Unsubscribe(s, sub)
		}
	default:
		resp.Status, resp.Error = "error", "unknown op "+req.Op
	}

	if payload, err := json.Marshal(resp); err == nil {
		_ = sub.Send(payload)
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, sub *ChannelSubscriber, log *zap.Logger) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			dropped := sub.Err()
			code, reason := websocket.CloseNormalClosure, ""
			if dropped != nil {
				log.Info("closing dropped subscriber", zap.Error(dropped))
				code, reason = websocket.CloseTryAgainLater, closeReason(dropped)
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(h.opts.WriteWait))
			if dropped != nil {
				_ = conn.Close()
			}
			return
		case payload := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("write failed", zap.Error(err))
				sub.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
				sub.Close()
				_ = conn.Close()
				return
			}
		}
	}
}

// closeReason fits err into the 123 bytes a close frame allows.
func closeReason(err error) string {
	reason := err.Error()
	if len(reason) > 123 {
		reason = reason[:123]
	}
	return reason
}
