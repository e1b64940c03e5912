// File: internal/feed/feed_test.go
package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/market"
)

func TestStreamURL(t *testing.T) {
	b := NewBinance("wss://stream.example.com:9443/", []string{"BTCUSDT", "ETHUSDT"}, zerolog.Nop())
	assert.Equal(t,
		"wss://stream.example.com:9443/stream?streams=btcusdt@trade/ethusdt@trade",
		b.streamURL(),
	)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   tradeEvent
		want market.Tick
		ok   bool
	}{
		{
			name: "valid trade",
			in:   tradeEvent{Event: "trade", Symbol: "btcusdt", Price: "70123.50", Qty: "0.25", TimeMs: 1700000000000},
			want: market.Tick{Symbol: "BTCUSDT", Price: 70123.5, Volume: 0.25, Timestamp: 1700000000000},
			ok:   true,
		},
		{
			name: "bad price",
			in:   tradeEvent{Event: "trade", Symbol: "BTCUSDT", Price: "abc", Qty: "1", TimeMs: 1},
		},
		{
			name: "bad quantity",
			in:   tradeEvent{Event: "trade", Symbol: "BTCUSDT", Price: "1", Qty: "", TimeMs: 1},
		},
		{
			name: "blank symbol",
			in:   tradeEvent{Event: "trade", Symbol: "  ", Price: "1", Qty: "1", TimeMs: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestBinanceRunEmitsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		payload := `{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"70123.50","q":"0.25","T":1700000000000}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
		// Non-trade noise must be skipped, not emitted.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"x","data":{"e":"aggTrade"}}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := NewBinance("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT"}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []market.Tick
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, func(tk market.Tick) {
			mu.Lock()
			got = append(got, tk)
			mu.Unlock()
			cancel()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, market.Tick{Symbol: "BTCUSDT", Price: 70123.5, Volume: 0.25, Timestamp: 1700000000000}, got[0])
	mu.Unlock()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestMockFeedEmitsForEverySymbol(t *testing.T) {
	m := NewMock([]string{"BTCUSD", "ETHUSD"}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]int)
	_ = m.Run(ctx, func(tk market.Tick) {
		assert.Positive(t, tk.Price)
		assert.Positive(t, tk.Volume)
		mu.Lock()
		seen[tk.Symbol]++
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, seen["BTCUSD"])
	assert.Positive(t, seen["ETHUSD"])
}
