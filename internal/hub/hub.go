// File: internal/hub/hub.go
package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketpulse/internal/market"
)

// Transport is one subscriber's write side. The hub distinguishes JSON event
// frames from raw audio frames at this level; receivers rely on the framing,
// never on payload inspection.
type Transport interface {
	WriteText(p []byte) error
	WriteBinary(p []byte) error
	Ping() error
	Close() error
}

type frame struct {
	binary  bool
	payload []byte
}

// Conn is a registered subscriber: a transport plus its outbound queue. One
// writer goroutine drains the queue, so delivery per connection is FIFO in
// publish order.
type Conn struct {
	id        string
	tr        Transport
	out       chan frame
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the connection's identifier.
func (c *Conn) ID() string { return c.id }

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.tr.Close()
	})
}

// enqueue is non-blocking; a full queue means the subscriber is too slow and
// gets evicted by the caller.
func (c *Conn) enqueue(f frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// Hub fans events out to every registered subscriber. Publishing never blocks
// on a slow consumer: each connection has its own bounded queue and writer,
// and a connection that overflows or fails a write is evicted without
// touching the others.
type Hub struct {
	log       zerolog.Logger
	queueSize int
	pingEvery time.Duration

	mu    sync.RWMutex
	conns map[string]*Conn

	// pubMu serializes publishers so frames land in every queue in hub-call
	// order, and an alert's text+audio pair is never split by another publish.
	pubMu sync.Mutex

	evicted   atomic.Uint64
	published atomic.Uint64
}

func New(queueSize int, log zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		log:       log.With().Str("component", "hub").Logger(),
		queueSize: queueSize,
		pingEvery: 45 * time.Second,
		conns:     make(map[string]*Conn),
	}
}

// Register adds a subscriber and starts its writer.
func (h *Hub) Register(tr Transport) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		tr:   tr,
		out:  make(chan frame, h.queueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()

	go h.writer(c)
	h.log.Info().Str("conn", c.id).Int("total", n).Msg("subscriber connected")
	return c
}

// Unregister removes a subscriber and releases its resources. Pending frames
// for that connection are abandoned; other subscribers are unaffected.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.log.Info().Str("conn", id).Int("total", n).Msg("subscriber disconnected")
}

// Publish marshals v once and enqueues it as a text frame to every
// subscriber.
func (h *Hub) Publish(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast payload")
		return
	}
	h.pubMu.Lock()
	defer h.pubMu.Unlock()
	h.fanout(frame{payload: payload})
	h.published.Add(1)
}

// PublishAlert delivers one alert atomically: the text frame, then (when
// present) the audio frame, back to back in every subscriber's queue.
func (h *Hub) PublishAlert(a market.Alert) {
	payload, err := json.Marshal(market.NewAlertMsg(a))
	if err != nil {
		h.log.Error().Err(err).Msg("marshal alert payload")
		return
	}
	frames := []frame{{payload: payload}}
	if len(a.Audio) > 0 {
		frames = append(frames, frame{binary: true, payload: a.Audio})
	}
	h.pubMu.Lock()
	defer h.pubMu.Unlock()
	h.fanout(frames...)
	h.published.Add(1)
}

func (h *Hub) fanout(frames ...frame) {
	h.mu.RLock()
	var overflowed []*Conn
	for _, c := range h.conns {
		for _, f := range frames {
			if !c.enqueue(f) {
				overflowed = append(overflowed, c)
				break
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range overflowed {
		h.evict(c, "queue overflow")
	}
}

func (h *Hub) evict(c *Conn, reason string) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	if ok {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.evicted.Add(1)
	h.log.Warn().Str("conn", c.id).Str("reason", reason).Msg("subscriber evicted")
}

func (h *Hub) writer(c *Conn) {
	ping := time.NewTicker(h.pingEvery)
	defer ping.Stop()
	for {
		select {
		case f := <-c.out:
			var err error
			if f.binary {
				err = c.tr.WriteBinary(f.payload)
			} else {
				err = c.tr.WriteText(f.payload)
			}
			if err != nil {
				h.evict(c, "write error")
				return
			}
		case <-ping.C:
			if err := c.tr.Ping(); err != nil {
				h.evict(c, "ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// Subscribers reports the live connection count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Evicted reports how many connections were dropped for overflow or write
// errors.
func (h *Hub) Evicted() uint64 { return h.evicted.Load() }
