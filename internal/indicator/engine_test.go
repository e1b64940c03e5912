// File: internal/indicator/engine_test.go
package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/market"
)

func testEngine() *Engine {
	return NewEngine(Options{WindowSize: 5, SMAWindow: 3, MinSamples: 2})
}

func tick(sym string, price, volume float64, ts int64) market.Tick {
	return market.Tick{Symbol: sym, Price: price, Volume: volume, Timestamp: ts}
}

func TestUpdateRejectsInvalidTicks(t *testing.T) {
	tests := []struct {
		name string
		t    market.Tick
		want error
	}{
		{"zero price", tick("BTCUSD", 0, 10, 1), ErrBadPrice},
		{"negative price", tick("BTCUSD", -5, 10, 2), ErrBadPrice},
		{"negative volume", tick("BTCUSD", 100, -1, 3), ErrBadVolume},
	}
	e := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Update(tt.t)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, uint64(len(tests)), e.Rejected())
}

func TestUpdateRejectsNonIncreasingTimestamps(t *testing.T) {
	e := testEngine()
	_, err := e.Update(tick("BTCUSD", 100, 10, 1000))
	require.NoError(t, err)

	_, err = e.Update(tick("BTCUSD", 101, 10, 1000))
	assert.ErrorIs(t, err, ErrStaleTick)
	_, err = e.Update(tick("BTCUSD", 101, 10, 999))
	assert.ErrorIs(t, err, ErrStaleTick)
	assert.Equal(t, uint64(2), e.Rejected())

	// A rejected tick never altered the window.
	s, err := e.Update(tick("BTCUSD", 102, 10, 1001))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Samples)
}

func TestZeroTimestampIsStillDeduplicated(t *testing.T) {
	e := testEngine()
	s, err := e.Update(tick("BTCUSD", 100, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Samples)

	_, err = e.Update(tick("BTCUSD", 101, 10, 0))
	assert.ErrorIs(t, err, ErrStaleTick)
}

func TestWindowEvictsOldestAtCapacity(t *testing.T) {
	e := testEngine()
	var s market.Snapshot
	var err error
	for i := 1; i <= 8; i++ {
		s, err = e.Update(tick("BTCUSD", float64(i), 10, int64(i)))
		require.NoError(t, err)
	}
	// WindowSize is 5: prices 4..8 survive.
	assert.Equal(t, 5, s.Samples)
	// SMAWindow is 3: mean of 6,7,8.
	assert.InDelta(t, 7.0, s.SMA, 1e-9)
}

func TestConstantPricesAreNeutral(t *testing.T) {
	e := testEngine()
	var s market.Snapshot
	var err error
	for i := 1; i <= 5; i++ {
		s, err = e.Update(tick("BTCUSD", 100, 10, int64(i)))
		require.NoError(t, err)
	}
	assert.Zero(t, s.Volatility)
	assert.InDelta(t, 50.0, s.RSI, 1e-9)
	assert.InDelta(t, 100.0, s.SMA, 1e-9)
	assert.InDelta(t, 100.0, s.VWAP, 1e-9)
}

func TestVWAPWeightsByVolume(t *testing.T) {
	e := testEngine()
	_, err := e.Update(tick("BTCUSD", 10, 1, 1))
	require.NoError(t, err)
	s, err := e.Update(tick("BTCUSD", 20, 3, 2))
	require.NoError(t, err)
	// (10·1 + 20·3) / 4
	assert.InDelta(t, 17.5, s.VWAP, 1e-9)
}

func TestVWAPFallsBackToLastPriceOnZeroVolume(t *testing.T) {
	e := testEngine()
	_, err := e.Update(tick("BTCUSD", 10, 0, 1))
	require.NoError(t, err)
	s, err := e.Update(tick("BTCUSD", 20, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, s.VWAP, 1e-9)
}

func TestRSIExtremes(t *testing.T) {
	e := testEngine()
	var s market.Snapshot
	for i := 1; i <= 4; i++ {
		var err error
		s, err = e.Update(tick("UPONLY", 100+float64(i), 10, int64(i)))
		require.NoError(t, err)
	}
	assert.InDelta(t, 100.0, s.RSI, 1e-9)

	for i := 1; i <= 4; i++ {
		var err error
		s, err = e.Update(tick("DOWNONLY", 100-float64(i), 10, int64(i)))
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.0, s.RSI, 1e-9)
}

func TestSymbolsAreIndependent(t *testing.T) {
	e := testEngine()
	_, err := e.Update(tick("BTCUSD", 100, 10, 5))
	require.NoError(t, err)

	// Same timestamp on another symbol is fine; windows are per symbol.
	s, err := e.Update(tick("ETHUSD", 50, 10, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Samples)
	assert.Equal(t, 2, e.SymbolCount())
}
