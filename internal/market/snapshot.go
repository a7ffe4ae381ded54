package market

// Windows bundles the lookback windows the derived metrics are computed over.
type Windows struct {
	VWAPMs     int64
	ATRMs      int64
	LookbackMs int64
	CVDMs      int64
	VolShortMs int64
	VolLongMs  int64
	SwingMs    int64
	SwingArm   int
}

// Metrics is a point-in-time projection of one instrument's derived state.
// Ok flags mirror the "undefined" semantics of the underlying reads.
type Metrics struct {
	Symbol string `json:"symbol"`
	LastTS int64  `json:"last_ts"`

	LastPrice float64 `json:"last_price"`
	HasTrade  bool    `json:"-"`

	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
	EMAOk   bool    `json:"-"`

	RSI   float64 `json:"rsi"`
	RSIOk bool    `json:"-"`

	VWAP    float64 `json:"vwap"`
	VWAPOk  bool    `json:"-"`
	VWAPDev float64 `json:"vwap_dev_pct"`

	ATR   float64 `json:"atr"`
	ATROk bool    `json:"-"`

	SpreadBps float64 `json:"spread_bps"`
	SpreadOk  bool    `json:"-"`

	TickRate float64 `json:"tick_rate"`

	BuyPressure   float64 `json:"buy_pressure"`
	BuyPressureOk bool    `json:"-"`

	Imbalance   float64 `json:"imbalance"`
	ImbalanceOk bool    `json:"-"`

	VolSpike   float64 `json:"vol_spike"`
	VolSpikeOk bool    `json:"-"`

	CVD float64 `json:"cvd"`

	SRDistance float64 `json:"sr_dist_pct"`
	SROk       bool    `json:"-"`
}

// Metrics computes the full derived projection for this instrument.
func (s *InstrumentState) Metrics(w Windows) Metrics {
	m := Metrics{Symbol: s.Symbol, LastTS: s.lastTS}
	m.LastPrice, m.HasTrade = s.LastPrice()

	fast, fok := s.EMAFast()
	slow, sok := s.EMASlow()
	m.EMAFast, m.EMASlow, m.EMAOk = fast, slow, fok && sok
	m.RSI, m.RSIOk = s.RSI()
	m.VWAP, m.VWAPOk = s.VWAP(w.VWAPMs)
	if m.VWAPOk {
		m.VWAPDev, _ = s.VWAPDeviationPct(w.VWAPMs)
	}
	m.ATR, m.ATROk = s.ATRLike(w.ATRMs)
	m.SpreadBps, m.SpreadOk = s.SpreadBps()
	m.TickRate = s.TickRate(w.LookbackMs)
	m.BuyPressure, m.BuyPressureOk = s.BuyPressure(w.LookbackMs)
	m.Imbalance, m.ImbalanceOk = s.Imbalance()
	m.VolSpike, m.VolSpikeOk = s.VolumeSpikeRatio(w.VolShortMs, w.VolLongMs)
	m.CVD = s.CVD(w.CVDMs)
	m.SRDistance, m.SROk = s.SRDistancePct(w.SwingMs, w.SwingArm)
	return m
}
