// File: internal/feed/mock.go
package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/market"
)

// Mock is a random-walk tick generator for running without feed credentials.
type Mock struct {
	symbols  []string
	prices   map[string]float64
	interval time.Duration
	rng      *rand.Rand
	log      zerolog.Logger
}

func NewMock(symbols []string, log zerolog.Logger) *Mock {
	prices := make(map[string]float64, len(symbols))
	base := 100.0
	for _, s := range symbols {
		prices[s] = base
		base *= 7 // spread the walks out so symbols are distinguishable
	}
	return &Mock{
		symbols:  symbols,
		prices:   prices,
		interval: 500 * time.Millisecond,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log.With().Str("component", "feed").Logger(),
	}
}

// Run emits one tick per symbol per interval until ctx is cancelled. Each
// price takes a ±0.5% random step.
func (m *Mock) Run(ctx context.Context, emit func(market.Tick)) error {
	m.log.Info().Int("symbols", len(m.symbols)).Msg("mock feed started")
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			for _, s := range m.symbols {
				step := (m.rng.Float64() - 0.5) / 100
				m.prices[s] *= 1 + step
				emit(market.Tick{
					Symbol:    s,
					Price:     m.prices[s],
					Volume:    float64(m.rng.Intn(90000) + 10000),
					Timestamp: now.UnixMilli(),
				})
			}
		}
	}
}
