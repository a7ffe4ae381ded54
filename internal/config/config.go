package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Feed struct {
	WSURL       string    `yaml:"ws_url"`
	TradeStream string    `yaml:"trade_stream"`
	DepthStream string    `yaml:"depth_stream"`
	EnableDepth *bool     `yaml:"enable_depth"`
	Symbols     []string  `yaml:"symbols"`
	WebhookURL  string    `yaml:"webhook_url"`
	Reconnect   Reconnect `yaml:"reconnect"`
}

type Reconnect struct {
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms"`
	JitterMs       int `yaml:"jitter_ms"`
}

// Signal holds the decision-engine thresholds. Every field has a default so the
// engine runs from an empty config file.
type Signal struct {
	EMAFastPeriod   int   `yaml:"ema_fast_period"`
	EMASlowPeriod   int   `yaml:"ema_slow_period"`
	RSIPeriod       int   `yaml:"rsi_period"`
	VWAPWindowMs    int64 `yaml:"vwap_window_ms"`
	ATRWindowMs     int64 `yaml:"atr_window_ms"`
	LookbackMs      int64 `yaml:"lookback_ms"`
	CVDWindowMs     int64 `yaml:"cvd_window_ms"`
	VolSpikeShortMs int64 `yaml:"vol_spike_short_ms"`
	VolSpikeLongMs  int64 `yaml:"vol_spike_long_ms"`
	SwingWindowMs   int64 `yaml:"swing_window_ms"`
	SwingArm        int   `yaml:"swing_arm"`

	MaxSpreadBps      float64 `yaml:"max_spread_bps"`
	ATRMin            float64 `yaml:"atr_min"`
	ATRMax            float64 `yaml:"atr_max"`
	MinTicksPerSec    float64 `yaml:"min_ticks_per_sec"`
	BuyPressureMin    float64 `yaml:"buy_pressure_min"`
	ImbalanceLongMin  float64 `yaml:"imbalance_long_min"`
	ImbalanceShortMax float64 `yaml:"imbalance_short_max"`
	VWAPDevMax        float64 `yaml:"vwap_dev_max"`
	VWAPBandLow       float64 `yaml:"vwap_band_low"`
	VWAPBandHigh      float64 `yaml:"vwap_band_high"`
	VolSpikeMin       float64 `yaml:"vol_spike_min"`
	SRProximityPct    float64 `yaml:"sr_proximity_pct"`
	RSIOverbought     float64 `yaml:"rsi_overbought"`
	RSIOversold       float64 `yaml:"rsi_oversold"`
}

type Trading struct {
	MaxPositions     int     `yaml:"max_positions"`
	CooldownMs       int64   `yaml:"cooldown_ms"`
	FlipConfirmCount int     `yaml:"flip_confirm_count"`
	FlipIntervalMs   int64   `yaml:"flip_interval_ms"`
	Leverage         int     `yaml:"leverage"`
	MarginUSD        float64 `yaml:"margin_usd"`
	TakeProfitUSD    float64 `yaml:"take_profit_usd"`
	StopLossUSD      float64 `yaml:"stop_loss_usd"`
	TakeProfitPct    float64 `yaml:"take_profit_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	MaintMarginRate  float64 `yaml:"maint_margin_rate"`
	Fees             Fees    `yaml:"fees"`
}

type Fees struct {
	TakerRate    float64 `yaml:"taker_rate"`
	MakerRate    float64 `yaml:"maker_rate"`
	Maker        bool    `yaml:"maker"`
	Discount     bool    `yaml:"discount"`
	DiscountMult float64 `yaml:"discount_mult"`
	SettleAsset  string  `yaml:"settle_asset"`
}

type Database struct {
	DSN            string `yaml:"dsn"`
	SampleEverySec int    `yaml:"sample_every_sec"`
	RetentionDays  int    `yaml:"retention_days"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Feed     Feed     `yaml:"feed"`
	Signal   Signal   `yaml:"signal"`
	Trading  Trading  `yaml:"trading"`
	Database Database `yaml:"database"`
	Server   Server   `yaml:"server"`
}

// Default returns a fully populated configuration; the engine must be able to
// run from this alone.
func Default() Root {
	var c Root
	c.applyDefaults()
	return c
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *Root) applyDefaults() {
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = "wss://stream.binance.com:9443/stream"
	}
	if c.Feed.TradeStream == "" {
		c.Feed.TradeStream = "aggTrade"
	}
	if c.Feed.DepthStream == "" {
		c.Feed.DepthStream = "bookTicker"
	}
	if c.Feed.EnableDepth == nil {
		t := true
		c.Feed.EnableDepth = &t
	}
	if len(c.Feed.Symbols) == 0 {
		c.Feed.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	for i, s := range c.Feed.Symbols {
		c.Feed.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if c.Feed.Reconnect.InitialDelayMs == 0 {
		c.Feed.Reconnect.InitialDelayMs = 2000
	}
	if c.Feed.Reconnect.MaxDelayMs == 0 {
		c.Feed.Reconnect.MaxDelayMs = 30000
	}
	if c.Feed.Reconnect.JitterMs == 0 {
		c.Feed.Reconnect.JitterMs = 250
	}

	s := &c.Signal
	if s.EMAFastPeriod == 0 {
		s.EMAFastPeriod = 5
	}
	if s.EMASlowPeriod == 0 {
		s.EMASlowPeriod = 20
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.VWAPWindowMs == 0 {
		s.VWAPWindowMs = 60_000
	}
	if s.ATRWindowMs == 0 {
		s.ATRWindowMs = 60_000
	}
	if s.LookbackMs == 0 {
		s.LookbackMs = 2_000
	}
	if s.CVDWindowMs == 0 {
		s.CVDWindowMs = 600_000
	}
	if s.VolSpikeShortMs == 0 {
		s.VolSpikeShortMs = 5_000
	}
	if s.VolSpikeLongMs == 0 {
		s.VolSpikeLongMs = 60_000
	}
	if s.SwingWindowMs == 0 {
		s.SwingWindowMs = 300_000
	}
	if s.SwingArm == 0 {
		s.SwingArm = 3
	}
	if s.MaxSpreadBps == 0 {
		s.MaxSpreadBps = 5
	}
	if s.ATRMin == 0 {
		s.ATRMin = 0.0002
	}
	if s.ATRMax == 0 {
		s.ATRMax = 0.05
	}
	if s.MinTicksPerSec == 0 {
		s.MinTicksPerSec = 1.0
	}
	if s.BuyPressureMin == 0 {
		s.BuyPressureMin = 0.55
	}
	if s.ImbalanceLongMin == 0 {
		s.ImbalanceLongMin = 1.2
	}
	if s.ImbalanceShortMax == 0 {
		s.ImbalanceShortMax = 0.8
	}
	if s.VWAPDevMax == 0 {
		s.VWAPDevMax = 0.002
	}
	if s.VWAPBandLow == 0 {
		s.VWAPBandLow = 0.0005
	}
	if s.VWAPBandHigh == 0 {
		s.VWAPBandHigh = 0.0025
	}
	if s.VolSpikeMin == 0 {
		s.VolSpikeMin = 1.5
	}
	if s.SRProximityPct == 0 {
		s.SRProximityPct = 0.002
	}
	if s.RSIOverbought == 0 {
		s.RSIOverbought = 70
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 30
	}

	t := &c.Trading
	if t.MaxPositions == 0 {
		t.MaxPositions = 10
	}
	if t.CooldownMs == 0 {
		t.CooldownMs = 3000
	}
	if t.FlipConfirmCount == 0 {
		t.FlipConfirmCount = 2
	}
	if t.FlipIntervalMs == 0 {
		t.FlipIntervalMs = 10_000
	}
	if t.Leverage == 0 {
		t.Leverage = 10
	}
	if t.MarginUSD == 0 {
		t.MarginUSD = 1000
	}
	if t.TakeProfitUSD == 0 && t.TakeProfitPct == 0 {
		t.TakeProfitUSD = 50
	}
	if t.StopLossUSD == 0 && t.StopLossPct == 0 {
		t.StopLossUSD = 50
	}
	if t.MaintMarginRate == 0 {
		t.MaintMarginRate = 0.004
	}
	if t.Fees.TakerRate == 0 {
		t.Fees.TakerRate = 0.0004
	}
	if t.Fees.MakerRate == 0 {
		t.Fees.MakerRate = 0.0002
	}
	if t.Fees.DiscountMult == 0 {
		t.Fees.DiscountMult = 0.75
	}
	if t.Fees.SettleAsset == "" {
		t.Fees.SettleAsset = "BNB"
	}

	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}
	if c.Database.SampleEverySec == 0 {
		c.Database.SampleEverySec = 5
	}
	if c.Database.RetentionDays == 0 {
		c.Database.RetentionDays = 2
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}
