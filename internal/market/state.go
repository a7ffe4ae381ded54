package market

import "strings"

// Aggressor identifies which side initiated a trade against resting liquidity.
type Aggressor uint8

const (
	AggressorUnknown Aggressor = iota
	AggressorBuyer
	AggressorSeller
)

// Trade is one executed trade as delivered by the venue.
type Trade struct {
	TS        int64 // epoch ms
	Price     float64
	Qty       float64
	Aggressor Aggressor
}

// BookTop is the latest top-of-book snapshot.
type BookTop struct {
	Bid    float64
	Ask    float64
	BidVol float64
	AskVol float64
	TS     int64
}

// tradeRing is a fixed-capacity ring buffer of trades, ordered by arrival.
// Eviction is strictly oldest-first; entries are never reordered.
type tradeRing struct {
	buf   []Trade
	start int
	count int
}

func newTradeRing(capacity int) *tradeRing {
	if capacity < 1 {
		capacity = 1
	}
	return &tradeRing{buf: make([]Trade, capacity)}
}

func (r *tradeRing) append(t Trade) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = t
		r.count++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

func (r *tradeRing) len() int { return r.count }

// at returns the i-th trade, 0 being the oldest.
func (r *tradeRing) at(i int) Trade {
	return r.buf[(r.start+i)%len(r.buf)]
}

// EMA is an incremental exponential moving average with weight k=2/(period+1).
// The first sample seeds the value.
type EMA struct {
	k      float64
	value  float64
	seeded bool
}

func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{k: 2.0 / (float64(period) + 1)}
}

func (e *EMA) Update(price float64) float64 {
	if !e.seeded {
		e.value = price
		e.seeded = true
	} else {
		e.value = price*e.k + e.value*(1-e.k)
	}
	return e.value
}

func (e *EMA) Value() (float64, bool) {
	return e.value, e.seeded
}

// RSI implements Wilder's relative strength index as an incremental update.
// The first nonzero gain/loss pair seeds the averages; afterwards
// avg = (avg*(period-1) + sample) / period.
type RSI struct {
	period    int
	avgGain   float64
	avgLoss   float64
	prevPrice float64
	hasPrev   bool
	value     float64
	hasValue  bool
}

func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period}
}

func (r *RSI) Update(price float64) {
	if !r.hasPrev {
		r.prevPrice = price
		r.hasPrev = true
		return
	}
	change := price - r.prevPrice
	r.prevPrice = price

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	if r.avgGain == 0 && r.avgLoss == 0 {
		r.avgGain = gain
		r.avgLoss = loss
	} else {
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}

	if r.avgLoss == 0 {
		r.value = 100.0
	} else {
		rs := r.avgGain / r.avgLoss
		r.value = 100.0 - 100.0/(1.0+rs)
	}
	r.hasValue = true
}

func (r *RSI) Value() (float64, bool) {
	return r.value, r.hasValue
}

const (
	defaultTradeCapacity = 3000
	defaultBookCapacity  = 200
)

// InstrumentState holds all rolling state for one symbol. Mutation and the
// windowed reads in metrics.go must be serialized by the caller; reads for a
// symbol never run concurrently with OnTrade/OnTopOfBook on the same symbol.
type InstrumentState struct {
	Symbol string

	trades    *tradeRing
	lastPrice float64
	lastQty   float64
	lastTS    int64
	hasTrade  bool

	emaFast *EMA
	emaSlow *EMA
	rsi     *RSI

	book     BookTop
	hasBook  bool
	bookHist *tradeRingBook
}

// tradeRingBook is the bounded top-of-book history kept for diagnostics only.
type tradeRingBook struct {
	buf   []BookTop
	start int
	count int
}

func newBookRing(capacity int) *tradeRingBook {
	if capacity < 1 {
		capacity = 1
	}
	return &tradeRingBook{buf: make([]BookTop, capacity)}
}

func (r *tradeRingBook) append(b BookTop) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = b
		r.count++
		return
	}
	r.buf[r.start] = b
	r.start = (r.start + 1) % len(r.buf)
}

func (r *tradeRingBook) len() int { return r.count }

func NewInstrumentState(symbol string, fastPeriod, slowPeriod, rsiPeriod int) *InstrumentState {
	return &InstrumentState{
		Symbol:   strings.ToUpper(symbol),
		trades:   newTradeRing(defaultTradeCapacity),
		emaFast:  NewEMA(fastPeriod),
		emaSlow:  NewEMA(slowPeriod),
		rsi:      NewRSI(rsiPeriod),
		bookHist: newBookRing(defaultBookCapacity),
	}
}

// OnTrade appends the trade and advances the incremental indicators.
// Returns the updated fast/slow EMA values.
func (s *InstrumentState) OnTrade(price, qty float64, ts int64, aggressor Aggressor) (fast, slow float64) {
	s.lastPrice = price
	s.lastQty = qty
	s.lastTS = ts
	s.hasTrade = true
	s.trades.append(Trade{TS: ts, Price: price, Qty: qty, Aggressor: aggressor})

	fast = s.emaFast.Update(price)
	slow = s.emaSlow.Update(price)
	s.rsi.Update(price)
	return fast, slow
}

// OnTopOfBook overwrites the latest snapshot and appends to the diagnostic history.
func (s *InstrumentState) OnTopOfBook(bid, ask, bidVol, askVol float64, ts int64) {
	s.book = BookTop{Bid: bid, Ask: ask, BidVol: bidVol, AskVol: askVol, TS: ts}
	s.hasBook = true
	s.bookHist.append(s.book)
}

func (s *InstrumentState) LastPrice() (float64, bool) {
	return s.lastPrice, s.hasTrade
}

func (s *InstrumentState) LastTS() int64 { return s.lastTS }

func (s *InstrumentState) Book() (BookTop, bool) {
	return s.book, s.hasBook
}

func (s *InstrumentState) TradeCount() int { return s.trades.len() }

func (s *InstrumentState) EMAFast() (float64, bool) { return s.emaFast.Value() }
func (s *InstrumentState) EMASlow() (float64, bool) { return s.emaSlow.Value() }
func (s *InstrumentState) RSI() (float64, bool)     { return s.rsi.Value() }

// State is the lazily populated set of per-symbol instrument states.
type State struct {
	fastPeriod int
	slowPeriod int
	rsiPeriod  int
	symbols    map[string]*InstrumentState
}

func NewState(fastPeriod, slowPeriod, rsiPeriod int) *State {
	return &State{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		rsiPeriod:  rsiPeriod,
		symbols:    make(map[string]*InstrumentState),
	}
}

// Ensure returns the instrument state for symbol, creating it on first use.
func (s *State) Ensure(symbol string) *InstrumentState {
	symbol = strings.ToUpper(symbol)
	st, ok := s.symbols[symbol]
	if !ok {
		st = NewInstrumentState(symbol, s.fastPeriod, s.slowPeriod, s.rsiPeriod)
		s.symbols[symbol] = st
	}
	return st
}

// Get returns the instrument state for symbol without creating it.
func (s *State) Get(symbol string) (*InstrumentState, bool) {
	st, ok := s.symbols[strings.ToUpper(symbol)]
	return st, ok
}

// Symbols returns the tracked symbols.
func (s *State) Symbols() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}
