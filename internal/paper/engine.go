package paper

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"tickscalper/internal/decision"
	"tickscalper/internal/observ"
)

// Position is one simulated leveraged position. At most one exists per symbol.
// The liquidation price is computed once at open and never recomputed.
type Position struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Side       decision.Side `json:"side"`
	Qty        float64       `json:"qty"`
	Entry      float64       `json:"entry"`
	Stop       float64       `json:"stop,omitempty"`        // 0 = no stop
	TakeProfit float64       `json:"take_profit,omitempty"` // 0 = no take-profit

	Leverage        int     `json:"leverage,omitempty"`
	MarginUSD       float64 `json:"margin_usd,omitempty"`
	NotionalUSD     float64 `json:"notional_usd"`
	MaintMarginRate float64 `json:"maint_margin_rate,omitempty"`
	LiqPrice        float64 `json:"liq_price,omitempty"` // 0 = not leveraged

	PnL        float64 `json:"pnl"`
	LastPrice  float64 `json:"last_price,omitempty"`
	FeeOpenUSD float64 `json:"fee_open_usd"`
	OpenTS     int64   `json:"open_ts"`
}

// ClosedPosition is the immutable record emitted exactly once per close.
type ClosedPosition struct {
	ID     string        `json:"id"`
	Symbol string        `json:"symbol"`
	Side   decision.Side `json:"side"`
	Qty    float64       `json:"qty"`
	Entry  float64       `json:"entry"`
	Exit   float64       `json:"exit"`

	PnL    float64 `json:"pnl"`     // raw, before fees
	NetPnL float64 `json:"net_pnl"` // after open+close fees

	Leverage    int     `json:"leverage,omitempty"`
	MarginUSD   float64 `json:"margin_usd,omitempty"`
	NotionalUSD float64 `json:"notional_usd"`
	LiqPrice    float64 `json:"liq_price,omitempty"`

	FeeOpenUSD  float64 `json:"fee_open_usd"`
	FeeCloseUSD float64 `json:"fee_close_usd"`
	FeeTotalUSD float64 `json:"fee_total_usd"`
	// When fees are discounted for settlement in an alternate asset and a
	// settlement price is known, the converted total is recorded too.
	SettleAsset    string  `json:"settle_asset,omitempty"`
	FeeTotalSettle float64 `json:"fee_total_settle,omitempty"`

	Reason  string `json:"reason"` // manual | signal | flip | liquidation | take_profit | stop_loss
	OpenTS  int64  `json:"open_ts"`
	CloseTS int64  `json:"close_ts"`
}

// FeeConfig selects the effective fee rate applied to notional on open and to
// exit value on close.
type FeeConfig struct {
	TakerRate    float64
	MakerRate    float64
	Maker        bool
	Discount     bool
	DiscountMult float64
	SettleAsset  string
}

// EffectiveRate resolves maker/taker mode plus the optional settlement discount.
func (f FeeConfig) EffectiveRate() float64 {
	rate := f.TakerRate
	if f.Maker {
		rate = f.MakerRate
	}
	if f.Discount && f.DiscountMult > 0 {
		rate *= f.DiscountMult
	}
	return rate
}

// Sink receives closed-position records. Failures are the sink's problem: a
// close has already happened by the time the sink runs.
type Sink interface {
	ClosedPosition(rec ClosedPosition)
}

// OpenRequest carries everything Open needs. Stop/TakeProfit of 0 mean unset.
type OpenRequest struct {
	Symbol          string
	Side            decision.Side
	Qty             float64
	Price           float64
	Stop            float64
	TakeProfit      float64
	Leverage        int
	MarginUSD       float64
	MaintMarginRate float64
}

// Engine owns the set of simulated open positions. It is not safe for
// concurrent use; the dispatcher serializes access.
type Engine struct {
	maxPositions int
	fees         FeeConfig
	positions    map[string]*Position
	sink         Sink

	closedCount int
	lastClosed  *ClosedPosition

	settlePrice float64 // last known settlement-asset price, for fee conversion

	nowMs func() int64
}

func NewEngine(maxPositions int, fees FeeConfig, sink Sink) *Engine {
	if maxPositions <= 0 {
		maxPositions = 10
	}
	return &Engine{
		maxPositions: maxPositions,
		fees:         fees,
		positions:    make(map[string]*Position),
		sink:         sink,
		nowMs:        func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock overrides the wall clock; tests use this.
func (e *Engine) SetClock(nowMs func() int64) { e.nowMs = nowMs }

// SetSettlementPrice records the latest price of the fee settlement asset.
func (e *Engine) SetSettlementPrice(price float64) { e.settlePrice = price }

func pnl(side decision.Side, entry, price, qty float64) float64 {
	if side == decision.Long {
		return (price - entry) * qty
	}
	return (entry - price) * qty
}

// liqPrice is the approximate liquidation price:
// long  ~ entry * (1 - 1/lev + mmr)
// short ~ entry * (1 + 1/lev - mmr)
func liqPrice(side decision.Side, entry float64, leverage int, mmr float64) float64 {
	if leverage <= 0 || entry <= 0 {
		return 0
	}
	inv := 1.0 / float64(leverage)
	if side == decision.Long {
		return entry * (1.0 - inv + mmr)
	}
	return entry * (1.0 + inv - mmr)
}

// Open creates a position. All validation runs before any state mutation.
func (e *Engine) Open(req OpenRequest) (*Position, error) {
	symbol := strings.ToUpper(req.Symbol)
	if req.Side != decision.Long && req.Side != decision.Short {
		return nil, ErrInvalidSide
	}
	if req.Qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, exists := e.positions[symbol]; exists {
		return nil, ErrPositionExists
	}
	if len(e.positions) >= e.maxPositions {
		return nil, ErrMaxPositions
	}

	notional := req.Qty * req.Price
	if req.Leverage > 0 && req.MarginUSD > 0 {
		notional = float64(req.Leverage) * req.MarginUSD
	}

	pos := &Position{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Side:            req.Side,
		Qty:             req.Qty,
		Entry:           req.Price,
		Stop:            req.Stop,
		TakeProfit:      req.TakeProfit,
		Leverage:        req.Leverage,
		MarginUSD:       req.MarginUSD,
		NotionalUSD:     notional,
		MaintMarginRate: req.MaintMarginRate,
		LiqPrice:        liqPrice(req.Side, req.Price, req.Leverage, req.MaintMarginRate),
		FeeOpenUSD:      notional * e.fees.EffectiveRate(),
		OpenTS:          e.nowMs(),
	}
	e.positions[symbol] = pos

	observ.IncCounter("paper_opens_total", map[string]string{"symbol": symbol, "side": string(req.Side)})
	observ.SetGauge("paper_open_positions", float64(len(e.positions)), nil)
	return pos, nil
}

// Close exits a position at the given price and emits the closed record.
func (e *Engine) Close(symbol string, price float64, reason string) (*ClosedPosition, error) {
	symbol = strings.ToUpper(symbol)
	pos, ok := e.positions[symbol]
	if !ok {
		return nil, ErrNoPosition
	}
	delete(e.positions, symbol)

	raw := pnl(pos.Side, pos.Entry, price, pos.Qty)
	feeClose := price * pos.Qty * e.fees.EffectiveRate()
	feeTotal := pos.FeeOpenUSD + feeClose

	rec := &ClosedPosition{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Side:        pos.Side,
		Qty:         pos.Qty,
		Entry:       pos.Entry,
		Exit:        price,
		PnL:         raw,
		NetPnL:      raw - feeTotal,
		Leverage:    pos.Leverage,
		MarginUSD:   pos.MarginUSD,
		NotionalUSD: pos.NotionalUSD,
		LiqPrice:    pos.LiqPrice,
		FeeOpenUSD:  pos.FeeOpenUSD,
		FeeCloseUSD: feeClose,
		FeeTotalUSD: feeTotal,
		Reason:      reason,
		OpenTS:      pos.OpenTS,
		CloseTS:     e.nowMs(),
	}
	if e.fees.Discount && e.settlePrice > 0 {
		rec.SettleAsset = e.fees.SettleAsset
		rec.FeeTotalSettle = feeTotal / e.settlePrice
	}

	e.closedCount++
	e.lastClosed = rec
	if e.sink != nil {
		e.sink.ClosedPosition(*rec)
	}

	observ.IncCounter("paper_closes_total", map[string]string{"symbol": symbol, "reason": reason})
	observ.SetGauge("paper_open_positions", float64(len(e.positions)), nil)
	return rec, nil
}

// MarkToMarket refreshes unrealized P&L and fires at most one of, in order:
// liquidation, take-profit, stop-loss. The first trigger closes the position
// at the given price and no further checks run.
func (e *Engine) MarkToMarket(symbol string, price float64) *ClosedPosition {
	pos, ok := e.positions[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	pos.PnL = pnl(pos.Side, pos.Entry, price, pos.Qty)
	pos.LastPrice = price

	if pos.LiqPrice > 0 {
		if (pos.Side == decision.Long && price <= pos.LiqPrice) ||
			(pos.Side == decision.Short && price >= pos.LiqPrice) {
			rec, _ := e.Close(symbol, price, "liquidation")
			return rec
		}
	}
	if pos.TakeProfit > 0 {
		if (pos.Side == decision.Long && price >= pos.TakeProfit) ||
			(pos.Side == decision.Short && price <= pos.TakeProfit) {
			rec, _ := e.Close(symbol, price, "take_profit")
			return rec
		}
	}
	if pos.Stop > 0 {
		if (pos.Side == decision.Long && price <= pos.Stop) ||
			(pos.Side == decision.Short && price >= pos.Stop) {
			rec, _ := e.Close(symbol, price, "stop_loss")
			return rec
		}
	}
	return nil
}

// Get returns the open position for a symbol.
func (e *Engine) Get(symbol string) (*Position, bool) {
	pos, ok := e.positions[strings.ToUpper(symbol)]
	return pos, ok
}

// Count returns the number of open positions.
func (e *Engine) Count() int { return len(e.positions) }

// ClosedCount returns how many positions have been closed.
func (e *Engine) ClosedCount() int { return e.closedCount }

// LastClosed returns the most recent closed record, kept for diagnostics.
func (e *Engine) LastClosed() *ClosedPosition { return e.lastClosed }

// Snapshot projects all open positions, recomputing P&L from the freshest
// price when one is provided and falling back to the last marked price.
func (e *Engine) Snapshot(lastPrices map[string]float64) []Position {
	out := make([]Position, 0, len(e.positions))
	for sym, pos := range e.positions {
		view := *pos
		if px, ok := lastPrices[sym]; ok && px > 0 {
			view.LastPrice = px
			view.PnL = pnl(pos.Side, pos.Entry, px, pos.Qty)
		}
		out = append(out, view)
	}
	return out
}
