package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsRunnable(t *testing.T) {
	c := Default()

	assert.Equal(t, "wss://stream.binance.com:9443/stream", c.Feed.WSURL)
	assert.Equal(t, "aggTrade", c.Feed.TradeStream)
	assert.Equal(t, "bookTicker", c.Feed.DepthStream)
	require.NotNil(t, c.Feed.EnableDepth)
	assert.True(t, *c.Feed.EnableDepth)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Feed.Symbols)
	assert.Equal(t, 2000, c.Feed.Reconnect.InitialDelayMs)
	assert.Equal(t, 30000, c.Feed.Reconnect.MaxDelayMs)

	assert.Equal(t, 5, c.Signal.EMAFastPeriod)
	assert.Equal(t, 20, c.Signal.EMASlowPeriod)
	assert.Equal(t, 14, c.Signal.RSIPeriod)
	assert.Equal(t, int64(60_000), c.Signal.VWAPWindowMs)
	assert.Equal(t, 5.0, c.Signal.MaxSpreadBps)
	assert.Equal(t, 0.55, c.Signal.BuyPressureMin)
	assert.Equal(t, 70.0, c.Signal.RSIOverbought)
	assert.Equal(t, 30.0, c.Signal.RSIOversold)

	assert.Equal(t, 10, c.Trading.MaxPositions)
	assert.Equal(t, int64(3000), c.Trading.CooldownMs)
	assert.Equal(t, 2, c.Trading.FlipConfirmCount)
	assert.Equal(t, 10, c.Trading.Leverage)
	assert.Equal(t, 1000.0, c.Trading.MarginUSD)
	assert.Equal(t, 50.0, c.Trading.TakeProfitUSD)
	assert.Equal(t, 0.004, c.Trading.MaintMarginRate)
	assert.Equal(t, 0.0004, c.Trading.Fees.TakerRate)
	assert.Equal(t, "BNB", c.Trading.Fees.SettleAsset)

	assert.Equal(t, 5, c.Database.SampleEverySec)
	assert.Equal(t, 2, c.Database.RetentionDays)
	assert.Equal(t, ":8080", c.Server.Addr)
}

func TestLoad_OverridesAndBackfills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
feed:
  symbols: [solusdt]
  webhook_url: http://localhost:9000/hook
signal:
  ema_fast_period: 8
trading:
  leverage: 5
  fees:
    maker: true
server:
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT"}, c.Feed.Symbols, "symbols are canonicalized")
	assert.Equal(t, "http://localhost:9000/hook", c.Feed.WebhookURL)
	assert.Equal(t, 8, c.Signal.EMAFastPeriod)
	assert.Equal(t, 20, c.Signal.EMASlowPeriod, "untouched fields keep defaults")
	assert.Equal(t, 5, c.Trading.Leverage)
	assert.True(t, c.Trading.Fees.Maker)
	assert.Equal(t, 0.0002, c.Trading.Fees.MakerRate)
	assert.Equal(t, ":9999", c.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_DepthCanBeDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed:\n  enable_depth: false\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, c.Feed.EnableDepth)
	assert.False(t, *c.Feed.EnableDepth, "explicit false must survive default backfill")
}
