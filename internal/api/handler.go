package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"marketstream/internal/model"
	"marketstream/internal/sink"

	"go.uber.org/zap"
)

// SnapshotReader is the read side of the sinks. *sink.Reader implements it.
type SnapshotReader interface {
	Latest(ctx context.Context, symbol model.Symbol, kind model.Kind) (json.RawMessage, error)
	LatestLiquidation(ctx context.Context, symbol model.Symbol) (sink.LiquidationView, error)
}

var readableKinds = map[model.Kind]bool{
	model.KindOrderBook:    true,
	model.KindTradeVolume:  true,
	model.KindLiquidation:  true,
	model.KindFunding:      true,
	model.KindOpenInterest: true,
}

type liquidationResponse struct {
	Realtime bool                    `json:"realtime"`
	Data     model.ForcedLiquidation `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register mounts the snapshot endpoints on mux:
//
//	GET /api/latest/{symbol}/{kind}
//	GET /api/liquidation/{symbol}
func Register(mux *http.ServeMux, reader SnapshotReader, logger *zap.Logger) {
	h := &handler{reader: reader, logger: logger.Named("api")}
	mux.HandleFunc("GET /api/latest/{symbol}/{kind}", h.latest)
	mux.HandleFunc("GET /api/liquidation/{symbol}", h.liquidation)
}

type handler struct {
	reader SnapshotReader
	logger *zap.Logger
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	symbol, err := model.ParseSymbol(r.PathValue("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	kind := model.Kind(r.PathValue("kind"))
	if !readableKinds[kind] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown kind " + string(kind)})
		return
	}

	raw, err := h.reader.Latest(r.Context(), symbol, kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *handler) liquidation(w http.ResponseWriter, r *http.Request) {
	symbol, err := model.ParseSymbol(r.PathValue("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	view, err := h.reader.LatestLiquidation(r.Context(), symbol)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationResponse{Realtime: view.Realtime, Data: view.Liquidation})
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, sink.ErrNoRecentData) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Error("snapshot read failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
