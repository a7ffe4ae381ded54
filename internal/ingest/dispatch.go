package ingest

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickscalper/internal/config"
	"tickscalper/internal/decision"
	"tickscalper/internal/market"
	"tickscalper/internal/observ"
	"tickscalper/internal/paper"
	"tickscalper/internal/risk"
	"tickscalper/internal/store"
)

const (
	qtyStep = 1e-6
	qtyMin  = 1e-8
)

// Sampler persists rate-limited signal snapshots.
type Sampler interface {
	SignalSample(row store.SignalSampleRow)
}

// Forwarder pushes trade events to an external endpoint.
type Forwarder interface {
	Send(event string, payload any)
}

// Dispatcher runs the whole pipeline for every feed event under one mutex:
// update rolling state, mark open positions, evaluate the signal, and let the
// flip controller decide whether anything trades. The HTTP surface calls into
// the same mutex, so every reader sees a consistent snapshot.
type Dispatcher struct {
	mu sync.Mutex

	cfg     config.Root
	windows market.Windows

	state  *market.State
	ctrl   *risk.Controller
	engine *paper.Engine

	sampler  Sampler
	samplers map[string]*rate.Limiter
	forward  Forwarder

	lastSignal map[string]decision.Side
	settleSym  string

	nowMs func() int64
}

// WindowsFromSignal maps the configured windows onto the metric reads.
func WindowsFromSignal(s config.Signal) market.Windows {
	return market.Windows{
		VWAPMs:     s.VWAPWindowMs,
		ATRMs:      s.ATRWindowMs,
		LookbackMs: s.LookbackMs,
		CVDMs:      s.CVDWindowMs,
		VolShortMs: s.VolSpikeShortMs,
		VolLongMs:  s.VolSpikeLongMs,
		SwingMs:    s.SwingWindowMs,
		SwingArm:   s.SwingArm,
	}
}

func NewDispatcher(cfg config.Root, engine *paper.Engine, ctrl *risk.Controller, sampler Sampler, fwd Forwarder) *Dispatcher {
	d := &Dispatcher{
		cfg:        cfg,
		windows:    WindowsFromSignal(cfg.Signal),
		state:      market.NewState(cfg.Signal.EMAFastPeriod, cfg.Signal.EMASlowPeriod, cfg.Signal.RSIPeriod),
		ctrl:       ctrl,
		engine:     engine,
		sampler:    sampler,
		samplers:   make(map[string]*rate.Limiter),
		forward:    fwd,
		lastSignal: make(map[string]decision.Side),
		settleSym:  strings.ToUpper(cfg.Trading.Fees.SettleAsset) + "USDT",
		nowMs:      func() int64 { return time.Now().UnixMilli() },
	}
	return d
}

// SetClock overrides the wall clock; tests use this.
func (d *Dispatcher) SetClock(nowMs func() int64) { d.nowMs = nowMs }

// Handle implements the feed Handler. One event, one lock hold.
func (d *Dispatcher) Handle(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case ev.Book != nil:
		st := d.state.Ensure(ev.Symbol)
		b := ev.Book
		st.OnTopOfBook(b.Bid, b.Ask, b.BidVol, b.AskVol, b.TS)
		observ.IncCounter("feed_events_total", map[string]string{"type": "book"})
	case ev.Trade != nil:
		d.onTrade(ev.Symbol, *ev.Trade)
		observ.IncCounter("feed_events_total", map[string]string{"type": "trade"})
	}
}

func (d *Dispatcher) onTrade(symbol string, t market.Trade) {
	st := d.state.Ensure(symbol)
	st.OnTrade(t.Price, t.Qty, t.TS, t.Aggressor)

	if d.forward != nil {
		d.forward.Send("trade", map[string]any{
			"symbol":    symbol,
			"price":     t.Price,
			"qty":       t.Qty,
			"ts":        t.TS,
			"aggressor": aggressorLabel(t.Aggressor),
		})
	}

	if symbol == d.settleSym {
		d.engine.SetSettlementPrice(t.Price)
	}

	// Mark first so exits trigger on the same tick that crosses the level.
	if rec := d.engine.MarkToMarket(symbol, t.Price); rec != nil {
		d.onClosed(rec)
	}

	m := st.Metrics(d.windows)
	side := decision.Evaluate(m, d.cfg.Signal)
	d.lastSignal[symbol] = side
	d.sample(symbol, m, side)

	pos, has := d.engine.Get(symbol)
	var posSide decision.Side
	if has {
		posSide = pos.Side
	}

	cmd := d.ctrl.Apply(symbol, side, posSide, has, t.TS)
	switch cmd.Action {
	case risk.ActionOpen:
		d.openFromSignal(symbol, cmd.Side, t, "signal")
	case risk.ActionFlip:
		d.flip(symbol, cmd.Side, t)
	}
}

func aggressorLabel(a market.Aggressor) string {
	switch a {
	case market.AggressorBuyer:
		return "buyer"
	case market.AggressorSeller:
		return "seller"
	default:
		return "unknown"
	}
}

// sizing derives quantity and bracket prices from the flat trading config.
func (d *Dispatcher) sizing(side decision.Side, price float64) (qty, stop, take float64) {
	t := d.cfg.Trading
	return d.sizingFor(side, price, t.Leverage, t.MarginUSD)
}

// sizingFor derives quantity and bracket prices from explicit leverage and
// margin, so manually supplied values size the position they describe.
func (d *Dispatcher) sizingFor(side decision.Side, price float64, leverage int, marginUSD float64) (qty, stop, take float64) {
	t := d.cfg.Trading
	notional := marginUSD * float64(leverage)
	if notional <= 0 {
		return 0, 0, 0
	}
	qty = math.Floor(notional/price/qtyStep) * qtyStep
	if qty < qtyMin {
		qty = qtyMin
	}

	var tpDelta, slDelta float64
	if t.TakeProfitUSD > 0 {
		tpDelta = t.TakeProfitUSD / qty
	} else if t.TakeProfitPct > 0 {
		tpDelta = price * t.TakeProfitPct
	}
	if t.StopLossUSD > 0 {
		slDelta = t.StopLossUSD / qty
	} else if t.StopLossPct > 0 {
		slDelta = price * t.StopLossPct
	}

	if side == decision.Long {
		take = price + tpDelta
		stop = price - slDelta
	} else {
		take = price - tpDelta
		stop = price + slDelta
	}
	if tpDelta == 0 {
		take = 0
	}
	if slDelta == 0 {
		stop = 0
	}
	return qty, stop, take
}

func (d *Dispatcher) openFromSignal(symbol string, side decision.Side, t market.Trade, origin string) {
	qty, stop, take := d.sizing(side, t.Price)
	if qty <= 0 {
		return
	}
	pos, err := d.engine.Open(paper.OpenRequest{
		Symbol:          symbol,
		Side:            side,
		Qty:             qty,
		Price:           t.Price,
		Stop:            stop,
		TakeProfit:      take,
		Leverage:        d.cfg.Trading.Leverage,
		MarginUSD:       d.cfg.Trading.MarginUSD,
		MaintMarginRate: d.cfg.Trading.MaintMarginRate,
	})
	if err != nil {
		observ.LogError("open_rejected", err, map[string]any{"symbol": symbol, "side": side})
		return
	}

	d.ctrl.RecordOpen(symbol, t.TS)
	observ.IncCounter("positions_opened_total", map[string]string{
		"symbol": symbol, "side": string(side), "origin": origin,
	})
	observ.Log("position_opened", map[string]any{
		"symbol": symbol, "side": side, "qty": pos.Qty, "entry": pos.Entry,
		"liq_price": pos.LiqPrice, "origin": origin,
	})
	if d.forward != nil {
		d.forward.Send("position_opened", pos)
	}
}

func (d *Dispatcher) flip(symbol string, side decision.Side, t market.Trade) {
	rec, err := d.engine.Close(symbol, t.Price, "flip")
	if err != nil {
		observ.LogError("flip_close_error", err, map[string]any{"symbol": symbol})
		return
	}
	d.onClosed(rec)
	d.ctrl.RecordFlip(symbol, t.TS)
	d.openFromSignal(symbol, side, t, "flip")
}

func (d *Dispatcher) onClosed(rec *paper.ClosedPosition) {
	observ.IncCounter("positions_closed_total", map[string]string{
		"symbol": rec.Symbol, "reason": rec.Reason,
	})
	observ.Log("position_closed", map[string]any{
		"symbol": rec.Symbol, "side": rec.Side, "reason": rec.Reason,
		"pnl": rec.PnL, "net_pnl": rec.NetPnL, "exit": rec.Exit,
	})
	if d.forward != nil {
		d.forward.Send("position_closed", rec)
	}
}

func (d *Dispatcher) sample(symbol string, m market.Metrics, side decision.Side) {
	if d.sampler == nil {
		return
	}
	lim, ok := d.samplers[symbol]
	if !ok {
		every := time.Duration(d.cfg.Database.SampleEverySec) * time.Second
		lim = rate.NewLimiter(rate.Every(every), 1)
		d.samplers[symbol] = lim
	}
	if !lim.Allow() {
		return
	}
	d.sampler.SignalSample(store.SampleFromMetrics(m, side))
}

// OpenManual opens a position from the control surface. Zero qty and zero
// leverage both fall back to the configured sizing.
func (d *Dispatcher) OpenManual(symbol string, side decision.Side, qty, stop, take float64, leverage int, marginUSD float64) (*paper.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	st, ok := d.state.Get(symbol)
	if !ok {
		return nil, paper.ErrNoMarketData
	}
	price, has := st.LastPrice()
	if !has {
		return nil, paper.ErrNoMarketData
	}

	if leverage == 0 {
		leverage = d.cfg.Trading.Leverage
	}
	if marginUSD == 0 {
		marginUSD = d.cfg.Trading.MarginUSD
	}
	if qty == 0 {
		autoQty, autoStop, autoTake := d.sizingFor(side, price, leverage, marginUSD)
		qty = autoQty
		if stop == 0 {
			stop = autoStop
		}
		if take == 0 {
			take = autoTake
		}
	}

	pos, err := d.engine.Open(paper.OpenRequest{
		Symbol:          symbol,
		Side:            side,
		Qty:             qty,
		Price:           price,
		Stop:            stop,
		TakeProfit:      take,
		Leverage:        leverage,
		MarginUSD:       marginUSD,
		MaintMarginRate: d.cfg.Trading.MaintMarginRate,
	})
	if err != nil {
		return nil, err
	}
	d.ctrl.RecordOpen(symbol, d.nowMs())
	observ.IncCounter("positions_opened_total", map[string]string{
		"symbol": symbol, "side": string(side), "origin": "manual",
	})
	if d.forward != nil {
		d.forward.Send("position_opened", pos)
	}
	return pos, nil
}

// CloseManual closes a position at the last traded price.
func (d *Dispatcher) CloseManual(symbol string) (*paper.ClosedPosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	st, ok := d.state.Get(symbol)
	if !ok {
		return nil, paper.ErrNoPosition
	}
	price, has := st.LastPrice()
	if !has {
		return nil, paper.ErrNoMarketData
	}
	rec, err := d.engine.Close(symbol, price, "manual")
	if err != nil {
		return nil, err
	}
	d.onClosed(rec)
	return rec, nil
}

// Stats returns current metric snapshots per tracked symbol.
func (d *Dispatcher) Stats() map[string]market.Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]market.Metrics)
	for _, sym := range d.state.Symbols() {
		st, _ := d.state.Get(sym)
		out[sym] = st.Metrics(d.windows)
	}
	return out
}

// Signals returns the most recent decision per symbol with its full gate
// breakdown.
func (d *Dispatcher) Signals() map[string]decision.Reason {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]decision.Reason)
	for _, sym := range d.state.Symbols() {
		st, _ := d.state.Get(sym)
		out[sym] = decision.Explain(st.Metrics(d.windows), d.cfg.Signal)
	}
	return out
}

// Positions returns open positions marked at the latest traded prices.
func (d *Dispatcher) Positions() []paper.Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	last := make(map[string]float64)
	for _, sym := range d.state.Symbols() {
		st, _ := d.state.Get(sym)
		if p, ok := st.LastPrice(); ok {
			last[sym] = p
		}
	}
	return d.engine.Snapshot(last)
}

// Summary reports aggregate engine counters for the health surface.
func (d *Dispatcher) Summary() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]any{
		"symbols":        d.state.Symbols(),
		"open_positions": d.engine.Count(),
		"closed_total":   d.engine.ClosedCount(),
	}
}
