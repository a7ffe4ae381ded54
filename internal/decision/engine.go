package decision

import (
	"tickscalper/internal/config"
	"tickscalper/internal/market"
	"tickscalper/internal/observ"
)

// Side is the directional bias produced by the engine.
type Side string

const (
	None  Side = "none"
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the reverse direction; None has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return None
	}
}

// Reason explains a decision for the control surface and offline analysis.
type Reason struct {
	Side         Side     `json:"side"`
	Missing      []string `json:"missing,omitempty"`
	GatesBlocked []string `json:"gates_blocked,omitempty"`
	LongOk       bool     `json:"long_ok"`
	ShortOk      bool     `json:"short_ok"`
}

// Evaluate maps an instrument's metric snapshot to a directional bias.
// Hard filters veto both directions; the long predicate is evaluated first and
// wins ties with the short predicate (fixed policy, see Explain).
func Evaluate(m market.Metrics, cfg config.Signal) Side {
	return Explain(m, cfg).Side
}

// Explain is Evaluate plus the gate bookkeeping.
func Explain(m market.Metrics, cfg config.Signal) Reason {
	r := Reason{Side: None}

	// Any undefined input means no decision.
	for _, req := range []struct {
		name string
		ok   bool
	}{
		{"last_price", m.HasTrade},
		{"ema", m.EMAOk},
		{"rsi", m.RSIOk},
		{"vwap", m.VWAPOk},
		{"atr", m.ATROk},
		{"spread", m.SpreadOk},
		{"buy_pressure", m.BuyPressureOk},
		{"imbalance", m.ImbalanceOk},
		{"vol_spike", m.VolSpikeOk},
		{"sr_distance", m.SROk},
	} {
		if !req.ok {
			r.Missing = append(r.Missing, req.name)
		}
	}
	if len(r.Missing) > 0 {
		return r
	}

	// Hard filters: each vetoes both directions.
	if m.SpreadBps > cfg.MaxSpreadBps {
		r.GatesBlocked = append(r.GatesBlocked, "spread")
	}
	if m.ATR < cfg.ATRMin || m.ATR > cfg.ATRMax {
		r.GatesBlocked = append(r.GatesBlocked, "atr_band")
	}
	if m.TickRate < cfg.MinTicksPerSec {
		r.GatesBlocked = append(r.GatesBlocked, "tick_rate")
	}
	if len(r.GatesBlocked) > 0 {
		observ.IncCounter("decision_vetoes_total", map[string]string{"symbol": m.Symbol, "gate": r.GatesBlocked[0]})
		return r
	}

	r.LongOk = m.EMAFast > m.EMASlow &&
		m.BuyPressure >= cfg.BuyPressureMin &&
		m.Imbalance >= cfg.ImbalanceLongMin &&
		m.VWAPDev <= cfg.VWAPDevMax &&
		m.VolSpike >= cfg.VolSpikeMin &&
		m.CVD > 0 &&
		m.SRDistance >= cfg.SRProximityPct &&
		m.RSI < cfg.RSIOverbought

	r.ShortOk = m.EMAFast < m.EMASlow &&
		m.BuyPressure <= 1-cfg.BuyPressureMin &&
		m.Imbalance <= cfg.ImbalanceShortMax &&
		m.VWAPDev >= cfg.VWAPBandLow && m.VWAPDev <= cfg.VWAPBandHigh &&
		m.VolSpike >= cfg.VolSpikeMin &&
		m.CVD < 0 &&
		m.SRDistance >= cfg.SRProximityPct &&
		m.RSI > cfg.RSIOversold

	// Long is checked first and returns on match; when both predicates hold
	// the long side wins.
	switch {
	case r.LongOk:
		r.Side = Long
	case r.ShortOk:
		r.Side = Short
	}
	return r
}
