// File: internal/breakout/detector.go
package breakout

import (
	"math"
	"sync"

	"marketpulse/internal/market"
)

// Options hold the detection thresholds.
type Options struct {
	RSIHigh         float64 // overbought bound, e.g. 80
	RSILow          float64 // oversold bound, e.g. 20
	VolumeSpikeMult float64 // current volume vs window mean, e.g. 5
	LevelStep       float64 // round-number level spacing, e.g. 1000
	MinSamples      int     // warm-up: no breakout below this sample count
}

// Detector evaluates indicator snapshots against the threshold rules.
// Rule priority is fixed and first-match-wins:
// RSI_HIGH, RSI_LOW, VOLUME_SPIKE, PRICE_LEVEL.
//
// The only state is the previous price per symbol, needed for level
// crossings. Evaluation for one symbol is sequential (pipeline worker);
// the map itself is guarded for cross-symbol access.
type Detector struct {
	opts Options

	mu        sync.Mutex
	prevPrice map[string]float64
}

func NewDetector(opts Options) *Detector {
	return &Detector{
		opts:      opts,
		prevPrice: make(map[string]float64),
	}
}

// Evaluate returns the breakout for a snapshot, if any. Deterministic given
// the snapshot and the symbol's previous price.
func (d *Detector) Evaluate(s market.Snapshot) (market.BreakoutEvent, bool) {
	d.mu.Lock()
	prev, hasPrev := d.prevPrice[s.Symbol]
	d.prevPrice[s.Symbol] = s.Price
	d.mu.Unlock()

	return d.evaluate(s, prev, hasPrev)
}

// Preview evaluates a snapshot without recording its price, so a synthetic
// snapshot never becomes the crossing baseline for the next real tick. The
// level-cross rule has no previous price to compare against and stays silent.
func (d *Detector) Preview(s market.Snapshot) (market.BreakoutEvent, bool) {
	return d.evaluate(s, 0, false)
}

func (d *Detector) evaluate(s market.Snapshot, prev float64, hasPrev bool) (market.BreakoutEvent, bool) {
	if s.Samples < d.opts.MinSamples {
		return market.BreakoutEvent{}, false
	}

	mk := func(trig market.Trigger, dir market.Direction) market.BreakoutEvent {
		return market.BreakoutEvent{
			Symbol:    s.Symbol,
			Direction: dir,
			Trigger:   trig,
			Price:     s.Price,
			Magnitude: magnitude(s),
			Timestamp: s.Timestamp,
		}
	}

	switch {
	case s.RSI > d.opts.RSIHigh:
		// Overbought: the signal is a fade, direction DOWN.
		return mk(market.TriggerRSIHigh, market.DirectionDown), true
	case s.RSI < d.opts.RSILow:
		// Oversold: recovery signal, direction UP.
		return mk(market.TriggerRSILow, market.DirectionUp), true
	case s.MeanVolume > 0 && s.Volume > d.opts.VolumeSpikeMult*s.MeanVolume:
		return mk(market.TriggerVolumeSpike, trend(s)), true
	}

	if hasPrev {
		if dir, ok := d.levelCross(prev, s.Price); ok {
			return mk(market.TriggerPriceLevel, dir), true
		}
	}
	return market.BreakoutEvent{}, false
}

// levelCross reports whether price moved across a round-number level
// (a positive multiple of LevelStep) since the previous snapshot.
func (d *Detector) levelCross(prev, price float64) (market.Direction, bool) {
	step := d.opts.LevelStep
	if up := step * math.Floor(price/step); up > 0 && prev < up && price >= up {
		return market.DirectionUp, true
	}
	if down := step * math.Floor(prev/step); down > 0 && prev > down && price <= down {
		return market.DirectionDown, true
	}
	return "", false
}

func trend(s market.Snapshot) market.Direction {
	if s.Price < s.SMA {
		return market.DirectionDown
	}
	return market.DirectionUp
}

func magnitude(s market.Snapshot) float64 {
	if s.Volatility <= 0 {
		return 0
	}
	return math.Abs(s.Price-s.SMA) / s.Volatility
}
