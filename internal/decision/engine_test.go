package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tickscalper/internal/config"
	"tickscalper/internal/market"
)

// goodLongMetrics passes every gate and the long predicate under the default
// thresholds.
func goodLongMetrics() market.Metrics {
	return market.Metrics{
		Symbol: "BTCUSDT", LastTS: 1000,
		LastPrice: 50000, HasTrade: true,
		EMAFast: 50010, EMASlow: 50000, EMAOk: true,
		RSI: 55, RSIOk: true,
		VWAP: 49990, VWAPOk: true, VWAPDev: 0.0002,
		ATR: 0.001, ATROk: true,
		SpreadBps: 1.0, SpreadOk: true,
		TickRate:    12,
		BuyPressure: 0.70, BuyPressureOk: true,
		Imbalance: 1.5, ImbalanceOk: true,
		VolSpike: 2.0, VolSpikeOk: true,
		CVD:        4.2,
		SRDistance: 0.004, SROk: true,
	}
}

func TestEvaluate_LongScenario(t *testing.T) {
	cfg := config.Default().Signal
	assert.Equal(t, Long, Evaluate(goodLongMetrics(), cfg))
}

func TestEvaluate_ShortScenario(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.EMAFast, m.EMASlow = 49990, 50000
	m.BuyPressure = 0.30
	m.Imbalance = 0.6
	m.VWAPDev = 0.001
	m.CVD = -4.2
	assert.Equal(t, Short, Evaluate(m, cfg))
}

func TestExplain_MissingMetricMeansNone(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.ATROk = false

	r := Explain(m, cfg)
	assert.Equal(t, None, r.Side)
	assert.Contains(t, r.Missing, "atr")
	assert.Empty(t, r.GatesBlocked, "gates are not evaluated with missing inputs")
}

func TestExplain_SpreadVetoesBothDirections(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.SpreadBps = cfg.MaxSpreadBps + 1

	r := Explain(m, cfg)
	assert.Equal(t, None, r.Side)
	assert.Contains(t, r.GatesBlocked, "spread")
	assert.False(t, r.LongOk)
	assert.False(t, r.ShortOk)
}

func TestExplain_ATRBandVeto(t *testing.T) {
	cfg := config.Default().Signal

	m := goodLongMetrics()
	m.ATR = cfg.ATRMin / 2
	assert.Contains(t, Explain(m, cfg).GatesBlocked, "atr_band")

	m.ATR = cfg.ATRMax * 2
	assert.Contains(t, Explain(m, cfg).GatesBlocked, "atr_band")
}

func TestExplain_TickRateVeto(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.TickRate = cfg.MinTicksPerSec / 2

	r := Explain(m, cfg)
	assert.Equal(t, None, r.Side)
	assert.Contains(t, r.GatesBlocked, "tick_rate")
}

func TestEvaluate_RSIBlocksOverboughtLong(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.RSI = cfg.RSIOverbought + 1
	assert.Equal(t, None, Evaluate(m, cfg))
}

func TestEvaluate_FlatCVDSupportsNeitherSide(t *testing.T) {
	cfg := config.Default().Signal
	m := goodLongMetrics()
	m.CVD = 0
	assert.Equal(t, None, Evaluate(m, cfg))
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, None, None.Opposite())
}
