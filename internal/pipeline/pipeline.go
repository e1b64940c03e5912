// File: internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/alert"
	"marketpulse/internal/breakout"
	"marketpulse/internal/cooldown"
	"marketpulse/internal/hub"
	"marketpulse/internal/indicator"
	"marketpulse/internal/market"
	"marketpulse/internal/state"
)

// Options size the pipeline's queues.
type Options struct {
	TickQueueSize int // ingestion buffer between the feed and the workers
	WorkerQueue   int // per-symbol buffer
	MaxInFlight   int // concurrent alert orchestrations
}

// Pipeline wires the stages together: feed → per-symbol worker → indicator →
// detector → gate → orchestrator → hub. Every tick for one symbol is handled
// by the same worker goroutine, so per-symbol processing is strictly
// sequential while symbols run in parallel.
type Pipeline struct {
	engine *indicator.Engine
	det    *breakout.Detector
	gate   *cooldown.Gate
	orch   *alert.Orchestrator
	hub    *hub.Hub
	cache  *state.Cache
	opts   Options
	log    zerolog.Logger

	ticks chan market.Tick

	mu      sync.Mutex
	workers map[string]chan market.Tick

	alertSlots chan struct{}

	droppedTicks  atomic.Uint64
	droppedAlerts atomic.Uint64
	processed     atomic.Uint64
}

func New(
	engine *indicator.Engine,
	det *breakout.Detector,
	gate *cooldown.Gate,
	orch *alert.Orchestrator,
	h *hub.Hub,
	cache *state.Cache,
	opts Options,
	log zerolog.Logger,
) *Pipeline {
	if opts.TickQueueSize <= 0 {
		opts.TickQueueSize = 1024
	}
	if opts.WorkerQueue <= 0 {
		opts.WorkerQueue = 256
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 8
	}
	return &Pipeline{
		engine:     engine,
		det:        det,
		gate:       gate,
		orch:       orch,
		hub:        h,
		cache:      cache,
		opts:       opts,
		log:        log.With().Str("component", "pipeline").Logger(),
		ticks:      make(chan market.Tick, opts.TickQueueSize),
		workers:    make(map[string]chan market.Tick),
		alertSlots: make(chan struct{}, opts.MaxInFlight),
	}
}

// Offer hands a tick from the feed to the pipeline without blocking the
// feed's read loop. A full queue drops the tick (counted).
func (p *Pipeline) Offer(t market.Tick) {
	// Normalize the key here so one symbol never lands on two workers.
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	select {
	case p.ticks <- t:
	default:
		p.droppedTicks.Add(1)
	}
}

// Run dispatches ticks to per-symbol workers until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.ticks:
			select {
			case p.worker(ctx, t.Symbol) <- t:
			default:
				// A backed-up symbol sheds its own load; the dispatcher
				// never stalls the other symbols behind it.
				p.droppedTicks.Add(1)
			}
		}
	}
}

// worker returns the symbol's queue, spawning its goroutine on first sight.
func (p *Pipeline) worker(ctx context.Context, symbol string) chan market.Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.workers[symbol]
	if ok {
		return ch
	}
	ch = make(chan market.Tick, p.opts.WorkerQueue)
	p.workers[symbol] = ch
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ch:
				p.ProcessTick(ctx, t)
			}
		}
	}()
	return ch
}

// ProcessTick runs one tick through indicator → detector → gate →
// orchestration. Callers must keep per-symbol calls sequential; the worker
// goroutines do.
func (p *Pipeline) ProcessTick(ctx context.Context, t market.Tick) {
	snap, err := p.engine.Update(t)
	if err != nil {
		// Bad input is dropped silently (counted by the engine); subscribers
		// see an unbroken stream of the ticks that did validate.
		return
	}
	p.processed.Add(1)

	p.cache.SaveTick(ctx, t)
	p.cache.SaveSnapshot(ctx, snap)

	p.hub.Publish(market.NewTickMsg(snap))

	ev, ok := p.det.Evaluate(snap)
	if !ok {
		return
	}
	if !p.gate.Admit(ev.Symbol, ev.Trigger, time.Now()) {
		return
	}
	p.dispatch(ctx, ev)
}

// dispatch starts an orchestration unless too many are already in flight.
// Orchestrations run on the pipeline's context: subscriber churn never
// cancels them.
func (p *Pipeline) dispatch(ctx context.Context, ev market.BreakoutEvent) {
	select {
	case p.alertSlots <- struct{}{}:
	default:
		p.droppedAlerts.Add(1)
		p.log.Warn().Str("symbol", ev.Symbol).Str("trigger", string(ev.Trigger)).
			Msg("alert queue full, breakout dropped")
		return
	}
	go func() {
		defer func() { <-p.alertSlots }()
		p.orch.Process(ctx, ev)
	}()
}

// Force injects a synthetic evaluation for operational smoke tests. It
// bypasses ingestion and the indicator windows but passes through the
// detector rules, the cooldown gate and the orchestrator unchanged. The
// detector evaluates it read-only: the synthetic price never becomes level
// state for real ticks. Returns whether a breakout was detected and admitted.
func (p *Pipeline) Force(ctx context.Context, symbol string, price, rsi float64) bool {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" || price <= 0 {
		return false
	}
	if rsi <= 0 {
		rsi = 95
	}
	snap := market.Snapshot{
		Symbol:    sym,
		SMA:       price,
		VWAP:      price,
		RSI:       rsi,
		Price:     price,
		Samples:   int(^uint(0) >> 1), // never warm-up gated
		Timestamp: time.Now().UnixMilli(),
	}
	ev, ok := p.det.Preview(snap)
	if !ok {
		return false
	}
	if !p.gate.Admit(ev.Symbol, ev.Trigger, time.Now()) {
		return false
	}
	p.log.Info().Str("symbol", sym).Str("trigger", string(ev.Trigger)).Msg("forced breakout admitted")
	p.dispatch(ctx, ev)
	return true
}

// Stats reports pipeline counters for the health endpoint.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	Symbols       int    `json:"symbols"`
	Processed     uint64 `json:"processed"`
	RejectedTicks uint64 `json:"rejected_ticks"`
	DroppedTicks  uint64 `json:"dropped_ticks"`
	DroppedAlerts uint64 `json:"dropped_alerts"`
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	symbols := len(p.workers)
	p.mu.Unlock()
	return Stats{
		QueueDepth:    len(p.ticks),
		Symbols:       symbols,
		Processed:     p.processed.Load(),
		RejectedTicks: p.engine.Rejected(),
		DroppedTicks:  p.droppedTicks.Load(),
		DroppedAlerts: p.droppedAlerts.Load(),
	}
}
