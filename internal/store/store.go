package store

import (
	"time"

	"tickscalper/internal/decision"
	"tickscalper/internal/market"
	"tickscalper/internal/paper"
)

// ClosedPositionRow is the persisted form of a paper.ClosedPosition.
type ClosedPositionRow struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement" json:"-"`
	RecordID    string  `gorm:"size:36;uniqueIndex" json:"id"`
	Symbol      string  `gorm:"size:32;index" json:"symbol"`
	Side        string  `gorm:"size:8" json:"side"`
	Qty         float64 `json:"qty"`
	Entry       float64 `json:"entry"`
	Exit        float64 `json:"exit"`
	PnL         float64 `json:"pnl"`
	NetPnL      float64 `json:"net_pnl"`
	Leverage    int     `json:"leverage,omitempty"`
	MarginUSD   float64 `json:"margin_usd,omitempty"`
	NotionalUSD float64 `json:"notional_usd"`
	LiqPrice    float64 `json:"liq_price,omitempty"`
	FeeOpenUSD  float64 `json:"fee_open_usd"`
	FeeCloseUSD float64 `json:"fee_close_usd"`
	FeeTotalUSD float64 `json:"fee_total_usd"`
	Reason      string  `gorm:"size:16" json:"reason"`
	OpenTS      int64   `json:"open_ts"`
	CloseTS     int64   `json:"close_ts"`

	CreatedAt time.Time `json:"created_at"`
}

func (ClosedPositionRow) TableName() string { return "closed_positions" }

// SignalSampleRow is one rate-limited snapshot of metrics plus the decision,
// kept for offline analysis.
type SignalSampleRow struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement" json:"-"`
	TSMs        int64   `gorm:"index:idx_signal_samples_sym_ts,priority:2;index" json:"ts_ms"`
	Symbol      string  `gorm:"size:32;index:idx_signal_samples_sym_ts,priority:1" json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	EMAFast     float64 `json:"ema_fast"`
	EMASlow     float64 `json:"ema_slow"`
	RSI         float64 `json:"rsi"`
	VWAP        float64 `json:"vwap"`
	VWAPDevPct  float64 `json:"vwap_dev_pct"`
	ATR         float64 `json:"atr"`
	TickRate    float64 `json:"tick_rate"`
	SpreadBps   float64 `json:"spread_bps"`
	BuyPressure float64 `json:"buy_pressure"`
	Imbalance   float64 `json:"imbalance"`
	VolSpike    float64 `json:"vol_spike"`
	CVD         float64 `json:"cvd"`
	SRDistPct   float64 `json:"sr_dist_pct"`
	Side        string  `gorm:"size:8" json:"side"`
}

func (SignalSampleRow) TableName() string { return "signal_samples" }

// Store is the persistence sink consumed by the core. The core never depends
// on a concrete database.
type Store interface {
	InsertClosedPosition(rec paper.ClosedPosition) error
	InsertSignalSample(row SignalSampleRow) error
	RecentClosedPositions(limit int) ([]ClosedPositionRow, error)
	ClearClosedPositions() error
	RecentSignalSamples(symbol string, lookback time.Duration, limit int) ([]SignalSampleRow, error)
	PurgeSignalSamples(olderThan time.Duration) (int64, error)
	Close() error
}

// SampleFromMetrics builds a sample row from a metric snapshot and a decision.
func SampleFromMetrics(m market.Metrics, side decision.Side) SignalSampleRow {
	return SignalSampleRow{
		TSMs:        m.LastTS,
		Symbol:      m.Symbol,
		LastPrice:   m.LastPrice,
		EMAFast:     m.EMAFast,
		EMASlow:     m.EMASlow,
		RSI:         m.RSI,
		VWAP:        m.VWAP,
		VWAPDevPct:  m.VWAPDev,
		ATR:         m.ATR,
		TickRate:    m.TickRate,
		SpreadBps:   m.SpreadBps,
		BuyPressure: m.BuyPressure,
		Imbalance:   m.Imbalance,
		VolSpike:    m.VolSpike,
		CVD:         m.CVD,
		SRDistPct:   m.SRDistance,
		Side:        string(side),
	}
}

// Nop satisfies Store when no database is configured; the core runs fine
// without one.
type Nop struct{}

func (Nop) InsertClosedPosition(paper.ClosedPosition) error { return nil }
func (Nop) InsertSignalSample(SignalSampleRow) error        { return nil }
func (Nop) RecentClosedPositions(int) ([]ClosedPositionRow, error) {
	return []ClosedPositionRow{}, nil
}
func (Nop) ClearClosedPositions() error { return nil }
func (Nop) RecentSignalSamples(string, time.Duration, int) ([]SignalSampleRow, error) {
	return []SignalSampleRow{}, nil
}
func (Nop) PurgeSignalSamples(time.Duration) (int64, error) { return 0, nil }
func (Nop) Close() error                                    { return nil }
