package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA_SeedAndUpdate(t *testing.T) {
	e := NewEMA(5) // k = 2/6

	_, ok := e.Value()
	assert.False(t, ok, "unseeded EMA must report no value")

	v := e.Update(100)
	assert.Equal(t, 100.0, v, "first sample seeds the EMA")

	k := 2.0 / 6.0
	v = e.Update(110)
	assert.InDelta(t, 110*k+100*(1-k), v, 1e-12)
}

func TestEMA_Deterministic(t *testing.T) {
	prices := []float64{100, 101, 99.5, 102, 98, 100.25}

	run := func() float64 {
		e := NewEMA(5)
		var v float64
		for _, p := range prices {
			v = e.Update(p)
		}
		return v
	}
	assert.Equal(t, run(), run(), "same inputs must yield identical EMA")
}

func TestRSI_Bounds(t *testing.T) {
	r := NewRSI(14)
	prices := []float64{100, 99, 101, 98, 102, 97, 103, 100, 100, 105, 90}
	for _, p := range prices {
		r.Update(p)
		if v, ok := r.Value(); ok {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	r := NewRSI(14)
	for p := 100.0; p < 110; p++ {
		r.Update(p)
	}
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 100.0, v, "zero average loss pins RSI at 100")
}

func TestRSI_NoValueBeforeSecondPrice(t *testing.T) {
	r := NewRSI(14)
	r.Update(100)
	_, ok := r.Value()
	assert.False(t, ok)
}

func TestTradeRing_EvictsOldestFirst(t *testing.T) {
	r := newTradeRing(3)
	for i := 1; i <= 5; i++ {
		r.append(Trade{TS: int64(i)})
	}
	require.Equal(t, 3, r.len())
	assert.Equal(t, int64(3), r.at(0).TS)
	assert.Equal(t, int64(4), r.at(1).TS)
	assert.Equal(t, int64(5), r.at(2).TS)
}

func TestInstrumentState_OnTrade(t *testing.T) {
	s := NewInstrumentState("btcusdt", 5, 20, 14)
	assert.Equal(t, "BTCUSDT", s.Symbol)

	fast, slow := s.OnTrade(50000, 0.5, 1000, AggressorBuyer)
	assert.Equal(t, 50000.0, fast)
	assert.Equal(t, 50000.0, slow)

	p, ok := s.LastPrice()
	require.True(t, ok)
	assert.Equal(t, 50000.0, p)
	assert.Equal(t, int64(1000), s.LastTS())
	assert.Equal(t, 1, s.TradeCount())
}

func TestState_EnsureIsLazyAndCanonical(t *testing.T) {
	st := NewState(5, 20, 14)

	_, ok := st.Get("BTCUSDT")
	assert.False(t, ok)

	a := st.Ensure("btcusdt")
	b := st.Ensure("BTCUSDT")
	assert.Same(t, a, b, "symbol lookup is case-insensitive")
	assert.ElementsMatch(t, []string{"BTCUSDT"}, st.Symbols())
}
