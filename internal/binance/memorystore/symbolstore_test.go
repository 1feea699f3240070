package memorystore

import (
	"testing"

	"marketstream/internal/model"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestSymbolStoreWorker
func TestSymbolStoreWorker(t *testing.T) {
	store := NewSymbolStore()
	ch := make(chan model.Symbol, 4)
	done := store.StartWorker(ch)

	ch <- "BTCUSDT"
	ch <- "ETHUSDT"
	ch <- "BTCUSDT"
	close(ch)
	<-done

	require.Equal(t, []model.Symbol{"BTCUSDT", "ETHUSDT"}, store.GetAll())
	require.Equal(t, 2, store.Len())
}

// go test -v --run TestSymbolStoreReplace
func TestSymbolStoreReplace(t *testing.T) {
	store := NewSymbolStore()
	store.Add("BTCUSDT")

	store.Replace([]model.Symbol{"SOLUSDT", "XRPUSDT", "SOLUSDT"})
	require.Equal(t, []model.Symbol{"SOLUSDT", "XRPUSDT"}, store.GetAll())

	// the returned slice is a copy
	got := store.GetAll()
	got[0] = "DOGEUSDT"
	require.Equal(t, model.Symbol("SOLUSDT"), store.GetAll()[0])
}
