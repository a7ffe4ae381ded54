package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickscalper/internal/decision"
	"tickscalper/internal/market"
	"tickscalper/internal/paper"
)

type memStore struct {
	mu      sync.Mutex
	closed  []paper.ClosedPosition
	samples []SignalSampleRow
	purged  time.Duration
	isOpen  bool
}

func (m *memStore) InsertClosedPosition(rec paper.ClosedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, rec)
	return nil
}

func (m *memStore) InsertSignalSample(row SignalSampleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, row)
	return nil
}

func (m *memStore) RecentClosedPositions(limit int) ([]ClosedPositionRow, error) {
	return nil, nil
}

func (m *memStore) ClearClosedPositions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = nil
	return nil
}

func (m *memStore) RecentSignalSamples(symbol string, lookback time.Duration, limit int) ([]SignalSampleRow, error) {
	return nil, nil
}

func (m *memStore) PurgeSignalSamples(olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = olderThan
	return 3, nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isOpen = false
	return nil
}

func TestSampleFromMetrics(t *testing.T) {
	m := market.Metrics{
		Symbol: "BTCUSDT", LastTS: 1700000000000,
		LastPrice: 50000, EMAFast: 50010, EMASlow: 49990,
		RSI: 61, VWAP: 49950, VWAPDev: 0.001, ATR: 0.002,
		TickRate: 8, SpreadBps: 1.2, BuyPressure: 0.6,
		Imbalance: 1.4, VolSpike: 1.8, CVD: 12.5, SRDistance: 0.003,
	}
	row := SampleFromMetrics(m, decision.Long)

	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.Equal(t, int64(1700000000000), row.TSMs)
	assert.Equal(t, 50000.0, row.LastPrice)
	assert.Equal(t, 0.001, row.VWAPDevPct)
	assert.Equal(t, 0.003, row.SRDistPct)
	assert.Equal(t, "long", row.Side)
}

func TestNopStore(t *testing.T) {
	n := Nop{}
	assert.NoError(t, n.InsertClosedPosition(paper.ClosedPosition{}))
	assert.NoError(t, n.InsertSignalSample(SignalSampleRow{}))
	rows, err := n.RecentClosedPositions(10)
	assert.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, n.ClearClosedPositions())
	samples, err := n.RecentSignalSamples("BTCUSDT", 48*time.Hour, 100)
	assert.NoError(t, err)
	assert.Empty(t, samples)
	assert.NoError(t, n.Close())
}

func TestAsync_DrainsOnShutdown(t *testing.T) {
	mem := &memStore{isOpen: true}
	a := NewAsync(mem, 16)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	a.ClosedPosition(paper.ClosedPosition{Symbol: "BTCUSDT"})
	a.SignalSample(SignalSampleRow{Symbol: "BTCUSDT"})
	a.Purge(48 * time.Hour)

	cancel()
	a.Wait()

	require.Len(t, mem.closed, 1)
	require.Len(t, mem.samples, 1)
	assert.Equal(t, 48*time.Hour, mem.purged)
	assert.False(t, mem.isOpen, "underlying store closes after the drain")
}

func TestAsync_DropsWhenQueueFull(t *testing.T) {
	mem := &memStore{}
	a := NewAsync(mem, 1)
	// not started: the queue fills and further writes drop instead of blocking

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.SignalSample(SignalSampleRow{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
