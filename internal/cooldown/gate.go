// File: internal/cooldown/gate.go
package cooldown

import (
	"sync"
	"time"

	"marketpulse/internal/market"
)

type key struct {
	symbol  string
	trigger market.Trigger
}

// Gate suppresses repeat alerts per (symbol, trigger) key. Admission and the
// last-fired update happen under one lock so two concurrent breakouts for the
// same key can never both pass.
type Gate struct {
	mu        sync.Mutex
	durations map[market.Trigger]time.Duration
	fallback  time.Duration
	lastFired map[key]time.Time
}

// NewGate builds a gate from the per-trigger suppression durations. Triggers
// missing from the map fall back to the longest configured duration.
func NewGate(durations map[market.Trigger]time.Duration) *Gate {
	var longest time.Duration
	for _, d := range durations {
		if d > longest {
			longest = d
		}
	}
	return &Gate{
		durations: durations,
		fallback:  longest,
		lastFired: make(map[key]time.Time),
	}
}

// Admit reports whether an alert for the key may fire at now, recording now
// as the new last-fired time when it does.
func (g *Gate) Admit(symbol string, trigger market.Trigger, now time.Time) bool {
	d, ok := g.durations[trigger]
	if !ok {
		d = g.fallback
	}

	k := key{symbol: symbol, trigger: trigger}
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, fired := g.lastFired[k]; fired && now.Sub(last) < d {
		return false
	}
	g.lastFired[k] = now
	return true
}

// Reset clears all suppression state.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.lastFired = make(map[key]time.Time)
	g.mu.Unlock()
}
