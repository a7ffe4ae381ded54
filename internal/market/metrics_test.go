package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *InstrumentState {
	return NewInstrumentState("BTCUSDT", 5, 20, 14)
}

func TestSpreadBps(t *testing.T) {
	s := newState()

	_, ok := s.SpreadBps()
	assert.False(t, ok, "no book yet")

	s.OnTopOfBook(0, 100, 1, 1, 1000)
	_, ok = s.SpreadBps()
	assert.False(t, ok, "zero bid is undefined")

	s.OnTopOfBook(99, 101, 1, 1, 1000)
	v, ok := s.SpreadBps()
	require.True(t, ok)
	assert.InDelta(t, 2.0/100.0*10000.0, v, 1e-9)
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestImbalance(t *testing.T) {
	s := newState()
	s.OnTopOfBook(100, 101, 30, 10, 1000)
	v, ok := s.Imbalance()
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-12)

	s.OnTopOfBook(100, 101, 30, 0, 1001)
	_, ok = s.Imbalance()
	assert.False(t, ok, "zero ask volume is undefined")
}

func TestVWAP_SingleTradeEqualsPrice(t *testing.T) {
	s := newState()
	s.OnTrade(250.5, 2, 1000, AggressorBuyer)
	v, ok := s.VWAP(60_000)
	require.True(t, ok)
	assert.Equal(t, 250.5, v)
}

func TestVWAP_EqualPricesCollapse(t *testing.T) {
	s := newState()
	for i := int64(0); i < 4; i++ {
		s.OnTrade(100, float64(i+1), 1000+i, AggressorBuyer)
	}
	v, ok := s.VWAP(60_000)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestVWAP_Weighted(t *testing.T) {
	s := newState()
	s.OnTrade(100, 1, 1000, AggressorBuyer)
	s.OnTrade(200, 3, 1001, AggressorBuyer)
	v, ok := s.VWAP(60_000)
	require.True(t, ok)
	assert.InDelta(t, (100*1+200*3)/4.0, v, 1e-12)
}

func TestVWAP_WindowExcludesOldTrades(t *testing.T) {
	s := newState()
	s.OnTrade(100, 1, 1000, AggressorBuyer)
	s.OnTrade(300, 1, 120_000, AggressorBuyer)
	v, ok := s.VWAP(60_000)
	require.True(t, ok)
	assert.Equal(t, 300.0, v, "trade outside the window must not count")
}

func TestATRLike_RequiresFiveSamples(t *testing.T) {
	s := newState()
	for i := int64(0); i < 4; i++ {
		s.OnTrade(100+float64(i), 1, 1000+i, AggressorBuyer)
	}
	_, ok := s.ATRLike(60_000)
	assert.False(t, ok)

	s.OnTrade(105, 1, 1004, AggressorBuyer)
	v, ok := s.ATRLike(60_000)
	require.True(t, ok)
	// high=105 low=100 first=100, tr=5, last=105
	assert.InDelta(t, 5.0/105.0, v, 1e-12)
}

func TestTickRate(t *testing.T) {
	s := newState()
	for i := int64(0); i < 10; i++ {
		s.OnTrade(100, 1, 1000+i*100, AggressorBuyer)
	}
	// all 10 trades fall inside a 2s lookback
	assert.InDelta(t, 5.0, s.TickRate(2000), 1e-12)
}

func TestBuyPressure_IgnoresUnknownAggressor(t *testing.T) {
	s := newState()
	s.OnTrade(100, 1, 1000, AggressorBuyer)
	s.OnTrade(100, 1, 1001, AggressorUnknown)
	s.OnTrade(100, 1, 1002, AggressorSeller)
	s.OnTrade(100, 1, 1003, AggressorBuyer)

	v, ok := s.BuyPressure(60_000)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, v, 1e-12)
}

func TestBuyPressure_UndefinedWithoutKnownSides(t *testing.T) {
	s := newState()
	s.OnTrade(100, 1, 1000, AggressorUnknown)
	_, ok := s.BuyPressure(60_000)
	assert.False(t, ok)
}

func TestVolumeSpikeRatio(t *testing.T) {
	s := newState()
	// 55 seconds of baseline volume, then a burst in the last 5s.
	for i := int64(0); i < 55; i++ {
		s.OnTrade(100, 1, i*1000, AggressorBuyer)
	}
	for i := int64(55); i < 60; i++ {
		s.OnTrade(100, 10, i*1000, AggressorBuyer)
	}
	v, ok := s.VolumeSpikeRatio(5_000, 60_000)
	require.True(t, ok)
	assert.Greater(t, v, 1.0, "burst volume must read as a spike")
}

func TestCVD_SignedSum(t *testing.T) {
	s := newState()
	s.OnTrade(100, 5, 1000, AggressorBuyer)
	s.OnTrade(100, 2, 1001, AggressorSeller)
	s.OnTrade(100, 7, 1002, AggressorUnknown)
	assert.InDelta(t, 3.0, s.CVD(600_000), 1e-12)
}

func TestSRDistancePct_FindsSwingHigh(t *testing.T) {
	s := newState()
	prices := []float64{100, 101, 102, 105, 102, 101, 100, 100.5, 101, 100.8, 100.9}
	for i, p := range prices {
		s.OnTrade(p, 1, int64(1000+i), AggressorBuyer)
	}
	v, ok := s.SRDistancePct(300_000, 3)
	require.True(t, ok)
	// swing high at 105 and swing low at 100; the low is nearer to 100.9
	assert.InDelta(t, (100.9-100.0)/100.9, v, 1e-9)
}

func TestSRDistancePct_UndefinedWithFlatTape(t *testing.T) {
	s := newState()
	for i := int64(0); i < 20; i++ {
		s.OnTrade(100, 1, 1000+i, AggressorBuyer)
	}
	_, ok := s.SRDistancePct(300_000, 3)
	assert.False(t, ok, "a flat tape has no strict swing points")
}

func TestMetricsSnapshot(t *testing.T) {
	s := newState()
	for i := int64(0); i < 30; i++ {
		px := 100 + float64(i%5)
		s.OnTrade(px, 1, 1000+i*100, AggressorBuyer)
	}
	s.OnTopOfBook(103.9, 104.1, 20, 10, 4000)

	w := Windows{
		VWAPMs: 60_000, ATRMs: 60_000, LookbackMs: 2_000, CVDMs: 600_000,
		VolShortMs: 5_000, VolLongMs: 60_000, SwingMs: 300_000, SwingArm: 3,
	}
	m := s.Metrics(w)

	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.True(t, m.HasTrade)
	assert.True(t, m.EMAOk)
	assert.True(t, m.RSIOk)
	assert.True(t, m.VWAPOk)
	assert.True(t, m.ATROk)
	assert.True(t, m.SpreadOk)
	assert.True(t, m.ImbalanceOk)
	assert.True(t, m.BuyPressureOk)
	assert.True(t, m.VolSpikeOk)
	assert.Equal(t, 1.0, m.BuyPressure)
	assert.InDelta(t, 2.0, m.Imbalance, 1e-12)
}
