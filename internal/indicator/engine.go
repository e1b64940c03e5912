// File: internal/indicator/engine.go
package indicator

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"

	"marketpulse/internal/market"
)

// Rejection reasons. Rejected ticks never alter a window.
var (
	ErrBadPrice  = errors.New("non-positive price")
	ErrBadVolume = errors.New("negative volume")
	ErrStaleTick = errors.New("non-increasing timestamp")
)

// Options bound the per-symbol sliding window.
type Options struct {
	WindowSize int // ticks retained per symbol
	SMAWindow  int // trailing prices averaged for the SMA
	MinSamples int // samples required before a snapshot is breakout-eligible
}

// Engine maintains one bounded sliding window per symbol and derives a
// Snapshot from it on every accepted tick. Pure compute: no I/O, no blocking.
//
// The window map is guarded for concurrent symbol creation; mutation of a
// single window is owned by that symbol's pipeline worker, which processes
// its ticks strictly sequentially.
type Engine struct {
	opts Options

	mu      sync.RWMutex
	windows map[string]*window

	rejected atomic.Uint64
}

type window struct {
	prices  []float64
	volumes []float64
	lastTS  int64
	hasLast bool
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:    opts,
		windows: make(map[string]*window),
	}
}

// Update validates the tick, pushes it into the symbol's window (evicting the
// oldest entry at capacity) and recomputes the indicator snapshot.
func (e *Engine) Update(t market.Tick) (market.Snapshot, error) {
	sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Price <= 0 {
		e.rejected.Add(1)
		return market.Snapshot{}, ErrBadPrice
	}
	if t.Volume < 0 {
		e.rejected.Add(1)
		return market.Snapshot{}, ErrBadVolume
	}

	w := e.window(sym)
	if w.hasLast && t.Timestamp <= w.lastTS {
		e.rejected.Add(1)
		return market.Snapshot{}, ErrStaleTick
	}
	w.lastTS = t.Timestamp
	w.hasLast = true
	w.push(t.Price, t.Volume, e.opts.WindowSize)

	return market.Snapshot{
		Symbol:     sym,
		SMA:        w.sma(e.opts.SMAWindow),
		Volatility: w.volatility(),
		VWAP:       w.vwap(t.Price),
		RSI:        w.rsi(),
		Price:      t.Price,
		Volume:     t.Volume,
		MeanVolume: w.meanVolume(),
		Samples:    len(w.prices),
		Timestamp:  t.Timestamp,
	}, nil
}

// Rejected reports how many ticks were dropped as invalid or stale.
func (e *Engine) Rejected() uint64 { return e.rejected.Load() }

// SymbolCount reports how many symbols have live windows.
func (e *Engine) SymbolCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.windows)
}

func (e *Engine) window(sym string) *window {
	e.mu.RLock()
	w := e.windows[sym]
	e.mu.RUnlock()
	if w != nil {
		return w
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if w = e.windows[sym]; w == nil {
		w = &window{
			prices:  make([]float64, 0, e.opts.WindowSize),
			volumes: make([]float64, 0, e.opts.WindowSize),
		}
		e.windows[sym] = w
	}
	return w
}

func (w *window) push(price, volume float64, capacity int) {
	if len(w.prices) >= capacity {
		copy(w.prices, w.prices[1:])
		w.prices[len(w.prices)-1] = price
		copy(w.volumes, w.volumes[1:])
		w.volumes[len(w.volumes)-1] = volume
		return
	}
	w.prices = append(w.prices, price)
	w.volumes = append(w.volumes, volume)
}

// sma averages the trailing k prices; during warm-up it uses all available.
func (w *window) sma(k int) float64 {
	n := len(w.prices)
	if n == 0 {
		return 0
	}
	if k > n {
		k = n
	}
	return stat.Mean(w.prices[n-k:], nil)
}

// volatility is the population standard deviation of the window.
func (w *window) volatility() float64 {
	if len(w.prices) < 2 {
		return 0
	}
	return stat.PopStdDev(w.prices, nil)
}

// vwap is Σ(price·volume)/Σ(volume); with no traded volume it falls back to
// the last price.
func (w *window) vwap(lastPrice float64) float64 {
	var pv, v float64
	for i := range w.prices {
		pv += w.prices[i] * w.volumes[i]
		v += w.volumes[i]
	}
	if v <= 0 {
		return lastPrice
	}
	return pv / v
}

func (w *window) meanVolume() float64 {
	if len(w.volumes) == 0 {
		return 0
	}
	return stat.Mean(w.volumes, nil)
}

// rsi scales the ratio of average gains to average losses over the window to
// [0,100]. No losses → 100; a flat window → 50 (neutral).
func (w *window) rsi() float64 {
	if len(w.prices) < 2 {
		return 50
	}
	var gains, losses float64
	for i := 1; i < len(w.prices); i++ {
		d := w.prices[i] - w.prices[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	n := float64(len(w.prices) - 1)
	avgGain, avgLoss := gains/n, losses/n
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
