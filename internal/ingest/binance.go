package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tickscalper/internal/market"
)

// Event is one normalized feed message. Exactly one of Trade or Book is set.
type Event struct {
	Symbol string
	Trade  *market.Trade
	Book   *market.BookTop
}

type binanceAggTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	Maker     bool   `json:"m"` // buyer is maker
}

type binanceBookTicker struct {
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
	EventTime int64  `json:"E"`
}

// combined-stream envelope: {"stream":"btcusdt@aggTrade","data":{...}}
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// StreamPath builds the combined-stream path for one stream kind over the
// configured symbols, e.g. "btcusdt@aggTrade/ethusdt@aggTrade".
func StreamPath(symbols []string, stream string) string {
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		parts = append(parts, strings.ToLower(s)+"@"+stream)
	}
	return strings.Join(parts, "/")
}

// ParseMessage decodes one raw websocket frame into a normalized event.
// Unknown event types return (nil, nil) and are skipped by the caller.
func ParseMessage(raw []byte) (*Event, error) {
	// The combined endpoint wraps every message; the single-stream endpoint
	// does not. Unwrap when the envelope is present.
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}

	// "b"/"a" are captured raw: in aggTrade frames "a" is a numeric trade id,
	// in bookTicker frames both are price strings.
	var peek struct {
		Event string          `json:"e"`
		Bid   json.RawMessage `json:"b"`
		Ask   json.RawMessage `json:"a"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case peek.Event == "aggTrade" || peek.Event == "trade":
		var t binanceAggTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode aggTrade: %w", err)
		}
		return tradeEvent(t)
	case peek.Event == "bookTicker" || (peek.Event == "" && len(peek.Bid) > 0 && len(peek.Ask) > 0):
		var b binanceBookTicker
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode bookTicker: %w", err)
		}
		return bookEvent(b)
	}
	return nil, nil
}

func tradeEvent(t binanceAggTrade) (*Event, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("aggTrade price %q: %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Qty, 64)
	if err != nil {
		return nil, fmt.Errorf("aggTrade qty %q: %w", t.Qty, err)
	}
	// m=true means the buyer was the maker, so the aggressor was the seller.
	agg := market.AggressorBuyer
	if t.Maker {
		agg = market.AggressorSeller
	}
	return &Event{
		Symbol: strings.ToUpper(t.Symbol),
		Trade: &market.Trade{
			TS:        t.TradeTime,
			Price:     price,
			Qty:       qty,
			Aggressor: agg,
		},
	}, nil
}

func bookEvent(b binanceBookTicker) (*Event, error) {
	bid, err := strconv.ParseFloat(b.BidPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("bookTicker bid %q: %w", b.BidPrice, err)
	}
	ask, err := strconv.ParseFloat(b.AskPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("bookTicker ask %q: %w", b.AskPrice, err)
	}
	bidQty, _ := strconv.ParseFloat(b.BidQty, 64)
	askQty, _ := strconv.ParseFloat(b.AskQty, 64)
	return &Event{
		Symbol: strings.ToUpper(b.Symbol),
		Book: &market.BookTop{
			TS:     b.EventTime,
			Bid:    bid,
			BidVol: bidQty,
			Ask:    ask,
			AskVol: askQty,
		},
	}, nil
}
