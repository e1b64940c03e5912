// File: internal/market/market.go
package market

// Shared data model for the tick → indicator → breakout → alert pipeline.

// Tick is one normalized trade update for a symbol. Timestamp is unix
// milliseconds and must be strictly increasing per symbol; the indicator
// engine drops anything else.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Snapshot is the indicator state derived from the trailing window of a
// symbol, recomputed on every accepted tick. It carries the triggering
// tick's price and volume so downstream stages need no second lookup.
type Snapshot struct {
	Symbol     string  `json:"symbol"`
	SMA        float64 `json:"sma"`
	Volatility float64 `json:"volatility"`
	VWAP       float64 `json:"vwap"`
	RSI        float64 `json:"rsi"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	MeanVolume float64 `json:"mean_volume"`
	Samples    int     `json:"samples"`
	Timestamp  int64   `json:"timestamp"`
}

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

type Trigger string

const (
	TriggerRSIHigh     Trigger = "RSI_HIGH"
	TriggerRSILow      Trigger = "RSI_LOW"
	TriggerVolumeSpike Trigger = "VOLUME_SPIKE"
	TriggerPriceLevel  Trigger = "PRICE_LEVEL"
)

// Triggers lists every trigger type; config validation iterates it.
var Triggers = []Trigger{TriggerRSIHigh, TriggerRSILow, TriggerVolumeSpike, TriggerPriceLevel}

// BreakoutEvent is an immutable detection result. Magnitude is the deviation
// from baseline, |price − sma| / volatility (0 when volatility is 0).
type BreakoutEvent struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Trigger   Trigger   `json:"trigger"`
	Price     float64   `json:"price"`
	Magnitude float64   `json:"magnitude"`
	Timestamp int64     `json:"timestamp"`
}

// Alert pairs a breakout with its commentary and (optionally) synthesized
// audio. Audio == nil means degraded, text-only delivery. The pairing is the
// delivery contract: the hub emits the text frame and the audio frame of one
// Alert back to back, never interleaved with another alert.
type Alert struct {
	Breakout   BreakoutEvent
	Commentary string
	Audio      []byte
}

/* ====================
   Wire messages
   ==================== */

// TickMsg is the JSON frame broadcast for every accepted tick.
type TickMsg struct {
	Type       string  `json:"type"` // "tick"
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	SMA        float64 `json:"sma"`
	Volatility float64 `json:"volatility"`
	VWAP       float64 `json:"vwap"`
	RSI        float64 `json:"rsi"`
	Timestamp  int64   `json:"timestamp"`
}

// AlertMsg is the JSON frame broadcast for a delivered alert. Audio follows
// as a separate binary frame when HasAudio is true.
type AlertMsg struct {
	Type      string    `json:"type"` // "alert"
	Symbol    string    `json:"symbol"`
	Trigger   Trigger   `json:"trigger"`
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
	Magnitude float64   `json:"magnitude"`
	Text      string    `json:"text"`
	HasAudio  bool      `json:"has_audio"`
	Timestamp int64     `json:"timestamp"`
}

// NewTickMsg builds the tick frame from an indicator snapshot.
func NewTickMsg(s Snapshot) TickMsg {
	return TickMsg{
		Type:       "tick",
		Symbol:     s.Symbol,
		Price:      s.Price,
		Volume:     s.Volume,
		SMA:        s.SMA,
		Volatility: s.Volatility,
		VWAP:       s.VWAP,
		RSI:        s.RSI,
		Timestamp:  s.Timestamp,
	}
}

// NewAlertMsg builds the alert frame from a completed Alert.
func NewAlertMsg(a Alert) AlertMsg {
	return AlertMsg{
		Type:      "alert",
		Symbol:    a.Breakout.Symbol,
		Trigger:   a.Breakout.Trigger,
		Direction: a.Breakout.Direction,
		Price:     a.Breakout.Price,
		Magnitude: a.Breakout.Magnitude,
		Text:      a.Commentary,
		HasAudio:  len(a.Audio) > 0,
		Timestamp: a.Breakout.Timestamp,
	}
}
