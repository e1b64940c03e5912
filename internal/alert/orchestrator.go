// File: internal/alert/orchestrator.go
package alert

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/market"
)

// Generator produces short commentary for a breakout (external collaborator).
type Generator interface {
	Generate(ctx context.Context, ev market.BreakoutEvent) (string, error)
}

// Synthesizer turns commentary text into an opaque audio byte stream
// (external collaborator).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Publisher receives the completed alert as one atomic unit.
type Publisher interface {
	PublishAlert(a market.Alert)
}

// State tracks an alert through the orchestration pipeline.
type State int

const (
	StateCreated State = iota
	StateTextPending
	StateTextReady
	StateAudioPending
	StateAudioReady
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateTextPending:
		return "TEXT_PENDING"
	case StateTextReady:
		return "TEXT_READY"
	case StateAudioPending:
		return "AUDIO_PENDING"
	case StateAudioReady:
		return "AUDIO_READY"
	case StateDelivered:
		return "DELIVERED"
	default:
		return "FAILED"
	}
}

// Options bound the collaborator calls.
type Options struct {
	GeneratorTimeout   time.Duration
	SynthesizerTimeout time.Duration
	MaxWords           int // brevity cap on commentary
}

// Orchestrator sequences breakout → text → audio → delivery. One attempt per
// stage, no retries: a live feed favors freshness over completeness.
// Generator failure drops the alert; synthesizer failure degrades it to
// text-only. No lock is held across collaborator calls.
type Orchestrator struct {
	gen   Generator
	synth Synthesizer
	pub   Publisher
	opts  Options
	log   zerolog.Logger

	delivered atomic.Uint64
	degraded  atomic.Uint64
	failed    atomic.Uint64
}

func NewOrchestrator(gen Generator, synth Synthesizer, pub Publisher, opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		gen:   gen,
		synth: synth,
		pub:   pub,
		opts:  opts,
		log:   log.With().Str("component", "orchestrator").Logger(),
	}
}

// Process runs one admitted breakout through the state machine and returns
// its terminal state. Subscriber churn never cancels it: the ctx passed in is
// the pipeline's lifetime, not any connection's.
func (o *Orchestrator) Process(ctx context.Context, ev market.BreakoutEvent) State {
	state := StateCreated

	state = StateTextPending
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GeneratorTimeout)
	text, err := o.gen.Generate(genCtx, ev)
	cancel()
	if err != nil {
		o.failed.Add(1)
		o.log.Warn().Err(err).
			Str("symbol", ev.Symbol).
			Str("trigger", string(ev.Trigger)).
			Str("state", state.String()).
			Msg("commentary generation failed, alert dropped")
		return StateFailed
	}
	text = Truncate(text, o.opts.MaxWords)
	state = StateTextReady

	a := market.Alert{Breakout: ev, Commentary: text}

	if o.synth != nil {
		state = StateAudioPending
		synthCtx, cancel := context.WithTimeout(ctx, o.opts.SynthesizerTimeout)
		audio, err := o.synth.Synthesize(synthCtx, text)
		cancel()
		if err != nil {
			// Degraded delivery: keep the textual signal.
			o.degraded.Add(1)
			o.log.Warn().Err(err).
				Str("symbol", ev.Symbol).
				Str("trigger", string(ev.Trigger)).
				Str("state", state.String()).
				Msg("speech synthesis failed, delivering text only")
		} else {
			a.Audio = audio
			state = StateAudioReady
		}
	}

	o.pub.PublishAlert(a)
	o.delivered.Add(1)
	o.log.Info().
		Str("symbol", ev.Symbol).
		Str("trigger", string(ev.Trigger)).
		Str("direction", string(ev.Direction)).
		Float64("price", ev.Price).
		Float64("magnitude", ev.Magnitude).
		Bool("audio", a.Audio != nil).
		Msg("alert delivered")
	return StateDelivered
}

// Stats reports delivery counters for the health endpoint.
func (o *Orchestrator) Stats() (delivered, degraded, failed uint64) {
	return o.delivered.Load(), o.degraded.Load(), o.failed.Load()
}

// Truncate enforces the brevity cap at a word boundary.
func Truncate(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}
