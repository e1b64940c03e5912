// File: internal/feed/binance.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"marketpulse/internal/market"
)

// Binance streams trade events from a binance-style combined websocket feed
// and normalizes them into ticks. Input is untrusted; the indicator engine
// does the actual validation, this adapter only reshapes the wire format.
type Binance struct {
	baseURL string
	symbols []string
	log     zerolog.Logger
}

// NewBinance builds the adapter. baseURL is the websocket endpoint, e.g.
// "wss://stream.binance.com:9443"; symbols are upper-cased feed symbols.
func NewBinance(baseURL string, symbols []string, log zerolog.Logger) *Binance {
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: symbols,
		log:     log.With().Str("component", "feed").Logger(),
	}
}

func (b *Binance) streamURL() string {
	parts := make([]string, 0, len(b.symbols))
	for _, s := range b.symbols {
		parts = append(parts, strings.ToLower(s)+"@trade")
	}
	return b.baseURL + "/stream?streams=" + strings.Join(parts, "/")
}

// Run connects and re-connects forever with exponential backoff capped at
// 30s, until ctx is cancelled.
func (b *Binance) Run(ctx context.Context, emit func(market.Tick)) error {
	backoff := time.Second
	for {
		err := b.runOnce(ctx, emit)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warn().Err(err).Dur("retry_in", backoff).Msg("feed disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}
}

// envelope is the combined-stream wrapper; data holds the trade event.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeEvent struct {
	Event  string `json:"e"` // "trade"
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TimeMs int64  `json:"T"`
}

func (b *Binance) runOnce(ctx context.Context, emit func(market.Tick)) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, b.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	b.log.Info().Int("symbols", len(b.symbols)).Msg("feed connected")

	// Close the socket when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		data := env.Data
		if data == nil {
			data = raw // raw single-stream payloads have no wrapper
		}
		var tr tradeEvent
		if err := json.Unmarshal(data, &tr); err != nil || tr.Event != "trade" {
			continue
		}
		if t, ok := normalize(tr); ok {
			emit(t)
		}
	}
}

func normalize(tr tradeEvent) (market.Tick, bool) {
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil {
		return market.Tick{}, false
	}
	qty, err := strconv.ParseFloat(tr.Qty, 64)
	if err != nil {
		return market.Tick{}, false
	}
	sym := strings.ToUpper(strings.TrimSpace(tr.Symbol))
	if sym == "" {
		return market.Tick{}, false
	}
	return market.Tick{
		Symbol:    sym,
		Price:     price,
		Volume:    qty,
		Timestamp: tr.TimeMs,
	}, true
}
