// File: internal/breakout/detector_test.go
package breakout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/market"
)

func testDetector() *Detector {
	return NewDetector(Options{
		RSIHigh:         80,
		RSILow:          20,
		VolumeSpikeMult: 5,
		LevelStep:       1000,
		MinSamples:      5,
	})
}

// quiet returns a snapshot that trips no rule on its own.
func quiet(sym string, price float64) market.Snapshot {
	return market.Snapshot{
		Symbol:     sym,
		SMA:        price,
		Volatility: 2,
		VWAP:       price,
		RSI:        50,
		Price:      price,
		Volume:     100,
		MeanVolume: 100,
		Samples:    10,
		Timestamp:  1,
	}
}

func TestWarmupSuppressesDetection(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 100)
	s.RSI = 99
	s.Samples = 4
	_, ok := d.Evaluate(s)
	assert.False(t, ok)
}

func TestRSITriggers(t *testing.T) {
	d := testDetector()

	s := quiet("BTCUSD", 100)
	s.RSI = 85
	s.Timestamp = 2
	ev, ok := d.Evaluate(s)
	require.True(t, ok)
	assert.Equal(t, market.TriggerRSIHigh, ev.Trigger)
	assert.Equal(t, market.DirectionDown, ev.Direction)
	assert.Equal(t, 100.0, ev.Price)

	s = quiet("BTCUSD", 100)
	s.RSI = 15
	s.Timestamp = 3
	ev, ok = d.Evaluate(s)
	require.True(t, ok)
	assert.Equal(t, market.TriggerRSILow, ev.Trigger)
	assert.Equal(t, market.DirectionUp, ev.Direction)
}

func TestRSIBoundsAreExclusive(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 100)
	s.RSI = 80
	_, ok := d.Evaluate(s)
	assert.False(t, ok)

	s.RSI = 20
	_, ok = d.Evaluate(s)
	assert.False(t, ok)
}

func TestVolumeSpikeDirectionFollowsTrend(t *testing.T) {
	d := testDetector()

	s := quiet("BTCUSD", 110)
	s.SMA = 100
	s.Volume = 600 // 6× mean
	ev, ok := d.Evaluate(s)
	require.True(t, ok)
	assert.Equal(t, market.TriggerVolumeSpike, ev.Trigger)
	assert.Equal(t, market.DirectionUp, ev.Direction)

	s = quiet("ETHUSD", 90)
	s.SMA = 100
	s.Volume = 600
	ev, ok = d.Evaluate(s)
	require.True(t, ok)
	assert.Equal(t, market.DirectionDown, ev.Direction)
}

func TestVolumeSpikeNeedsMeanVolume(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 100)
	s.MeanVolume = 0
	s.Volume = 1e9
	_, ok := d.Evaluate(s)
	assert.False(t, ok)
}

func TestRSIOutranksVolumeSpike(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 100)
	s.RSI = 90
	s.Volume = 600
	ev, ok := d.Evaluate(s)
	require.True(t, ok)
	assert.Equal(t, market.TriggerRSIHigh, ev.Trigger)
}

func TestLevelCrossUp(t *testing.T) {
	d := testDetector()
	_, ok := d.Evaluate(quiet("BTCUSD", 995)) // records prev, no prev to cross from
	require.False(t, ok)

	ev, ok := d.Evaluate(quiet("BTCUSD", 1005))
	require.True(t, ok)
	assert.Equal(t, market.TriggerPriceLevel, ev.Trigger)
	assert.Equal(t, market.DirectionUp, ev.Direction)
}

func TestLevelCrossDown(t *testing.T) {
	d := testDetector()
	_, ok := d.Evaluate(quiet("BTCUSD", 2010))
	require.False(t, ok)

	ev, ok := d.Evaluate(quiet("BTCUSD", 1995))
	require.True(t, ok)
	assert.Equal(t, market.TriggerPriceLevel, ev.Trigger)
	assert.Equal(t, market.DirectionDown, ev.Direction)
}

func TestNoCrossWithinSameBand(t *testing.T) {
	d := testDetector()
	_, ok := d.Evaluate(quiet("BTCUSD", 1100))
	require.False(t, ok)
	_, ok = d.Evaluate(quiet("BTCUSD", 1900))
	assert.False(t, ok)
}

func TestLandingExactlyOnLevelCrosses(t *testing.T) {
	d := testDetector()
	_, ok := d.Evaluate(quiet("BTCUSD", 999))
	require.False(t, ok)

	ev, ok := d.Evaluate(quiet("BTCUSD", 1000))
	require.True(t, ok)
	assert.Equal(t, market.DirectionUp, ev.Direction)
}

func TestWarmupStillRecordsPrevPrice(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 995)
	s.Samples = 1 // below warm-up
	_, ok := d.Evaluate(s)
	require.False(t, ok)

	// Once warm, the earlier price is the crossing baseline.
	ev, ok := d.Evaluate(quiet("BTCUSD", 1005))
	require.True(t, ok)
	assert.Equal(t, market.TriggerPriceLevel, ev.Trigger)
}

func TestPreviewAppliesRulesWithoutLevelState(t *testing.T) {
	d := testDetector()

	s := quiet("BTCUSD", 100)
	s.RSI = 95
	ev, ok := d.Preview(s)
	require.True(t, ok)
	assert.Equal(t, market.TriggerRSIHigh, ev.Trigger)

	// No previous price is consulted or recorded, so a price that would
	// straddle a level against earlier state stays silent.
	_, ok = d.Preview(quiet("BTCUSD", 1005))
	assert.False(t, ok)
}

func TestPreviewDoesNotBecomeCrossingBaseline(t *testing.T) {
	d := testDetector()
	_, ok := d.Evaluate(quiet("BTCUSD", 995))
	require.False(t, ok)

	// A synthetic price far away must not replace 995 as the baseline.
	s := quiet("BTCUSD", 69999.5)
	s.RSI = 95
	_, ok = d.Preview(s)
	require.True(t, ok)

	ev, ok := d.Evaluate(quiet("BTCUSD", 1005))
	require.True(t, ok)
	assert.Equal(t, market.TriggerPriceLevel, ev.Trigger)
	assert.Equal(t, market.DirectionUp, ev.Direction)
}

func TestMagnitude(t *testing.T) {
	d := testDetector()
	s := quiet("BTCUSD", 110)
	s.SMA = 100
	s.Volatility = 5
	s.RSI = 90
	ev, ok := d.Evaluate(s)
	require.True(t, ok)
	assert.InDelta(t, 2.0, ev.Magnitude, 1e-9)

	s = quiet("ETHUSD", 110)
	s.SMA = 100
	s.Volatility = 0
	s.RSI = 90
	ev, ok = d.Evaluate(s)
	require.True(t, ok)
	assert.Zero(t, ev.Magnitude)
}
