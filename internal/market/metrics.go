package market

import "math"

// Windowed reads over the bounded trade buffer. All of these are pure: they
// never mutate the instrument state. "Undefined" is the second return value.

// SpreadBps returns (ask-bid)/mid in basis points.
// Undefined when either side of the book is missing or non-positive.
func (s *InstrumentState) SpreadBps() (float64, bool) {
	if !s.hasBook || s.book.Bid <= 0 || s.book.Ask <= 0 {
		return 0, false
	}
	mid := (s.book.Ask + s.book.Bid) / 2.0
	if mid <= 0 {
		return 0, false
	}
	return (s.book.Ask - s.book.Bid) / mid * 10000.0, true
}

// Imbalance returns bidVolume/askVolume; undefined if either volume is zero.
func (s *InstrumentState) Imbalance() (float64, bool) {
	if !s.hasBook || s.book.BidVol <= 0 || s.book.AskVol <= 0 {
		return 0, false
	}
	return s.book.BidVol / s.book.AskVol, true
}

// cutoff returns now-windowMs anchored on the last trade timestamp.
func (s *InstrumentState) cutoff(windowMs int64) int64 {
	return s.lastTS - windowMs
}

// VWAP returns the volume-weighted average price of trades newer than the
// cutoff. The buffer is time-ordered, so the scan walks newest to oldest and
// stops at the first trade older than the cutoff.
func (s *InstrumentState) VWAP(windowMs int64) (float64, bool) {
	cutoff := s.cutoff(windowMs)
	num, den := 0.0, 0.0
	for i := s.trades.len() - 1; i >= 0; i-- {
		t := s.trades.at(i)
		if t.TS < cutoff {
			break
		}
		num += t.Price * t.Qty
		den += t.Qty
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// VWAPDeviationPct returns |lastPrice - vwap| / vwap.
func (s *InstrumentState) VWAPDeviationPct(windowMs int64) (float64, bool) {
	vwap, ok := s.VWAP(windowMs)
	if !ok || !s.hasTrade {
		return 0, false
	}
	return math.Abs(s.lastPrice-vwap) / vwap, true
}

// ATRLike is a candle-free volatility proxy: the true range of the window
// against its first price, normalized by the last price.
// Undefined with fewer than 5 samples in the window.
func (s *InstrumentState) ATRLike(windowMs int64) (float64, bool) {
	cutoff := s.cutoff(windowMs)
	var high, low, first float64
	n := 0
	for i := 0; i < s.trades.len(); i++ {
		t := s.trades.at(i)
		if t.TS < cutoff {
			continue
		}
		if n == 0 {
			high, low, first = t.Price, t.Price, t.Price
		} else {
			if t.Price > high {
				high = t.Price
			}
			if t.Price < low {
				low = t.Price
			}
		}
		n++
	}
	if n < 5 || !s.hasTrade || s.lastPrice <= 0 {
		return 0, false
	}
	tr := math.Max(high-low, math.Max(math.Abs(high-first), math.Abs(low-first)))
	return tr / s.lastPrice, true
}

// TickRate counts trades in the lookback, per second.
func (s *InstrumentState) TickRate(lookbackMs int64) float64 {
	if lookbackMs <= 0 {
		return 0
	}
	cutoff := s.cutoff(lookbackMs)
	n := 0
	for i := s.trades.len() - 1; i >= 0; i-- {
		if s.trades.at(i).TS < cutoff {
			break
		}
		n++
	}
	return float64(n) / (float64(lookbackMs) / 1000.0)
}

// BuyPressure is the fraction of trades in the lookback with known aggressor
// that were buyer-initiated; undefined when no trade in the lookback has a
// known side.
func (s *InstrumentState) BuyPressure(lookbackMs int64) (float64, bool) {
	cutoff := s.cutoff(lookbackMs)
	buy, total := 0, 0
	for i := s.trades.len() - 1; i >= 0; i-- {
		t := s.trades.at(i)
		if t.TS < cutoff {
			break
		}
		if t.Aggressor == AggressorUnknown {
			continue
		}
		total++
		if t.Aggressor == AggressorBuyer {
			buy++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(buy) / float64(total), true
}

// VolumeSpikeRatio compares short-window volume against the long-window volume
// rescaled to the short window's duration. Undefined if the long window has no
// volume.
func (s *InstrumentState) VolumeSpikeRatio(shortMs, longMs int64) (float64, bool) {
	if shortMs <= 0 || longMs <= 0 {
		return 0, false
	}
	shortCut := s.cutoff(shortMs)
	longCut := s.cutoff(longMs)
	shortVol, longVol := 0.0, 0.0
	for i := s.trades.len() - 1; i >= 0; i-- {
		t := s.trades.at(i)
		if t.TS < longCut {
			break
		}
		longVol += t.Qty
		if t.TS >= shortCut {
			shortVol += t.Qty
		}
	}
	if longVol <= 0 {
		return 0, false
	}
	expected := longVol * float64(shortMs) / float64(longMs)
	if expected <= 0 {
		return 0, false
	}
	return shortVol / expected, true
}

// CVD is the signed sum of trade quantities in the window: buyer-aggressed
// volume counts positive, seller-aggressed negative, unknown zero.
func (s *InstrumentState) CVD(windowMs int64) float64 {
	cutoff := s.cutoff(windowMs)
	sum := 0.0
	for i := s.trades.len() - 1; i >= 0; i-- {
		t := s.trades.at(i)
		if t.TS < cutoff {
			break
		}
		switch t.Aggressor {
		case AggressorBuyer:
			sum += t.Qty
		case AggressorSeller:
			sum -= t.Qty
		}
	}
	return sum
}

// SRDistancePct detects swing highs/lows in the window (a point strictly
// above/below all points within swingArm samples on both sides) and returns
// the minimum relative distance from the last price to any detected level.
// Undefined when no level is found.
func (s *InstrumentState) SRDistancePct(windowMs int64, swingArm int) (float64, bool) {
	if swingArm < 1 || !s.hasTrade || s.lastPrice <= 0 {
		return 0, false
	}
	cutoff := s.cutoff(windowMs)
	px := make([]float64, 0, s.trades.len())
	for i := 0; i < s.trades.len(); i++ {
		t := s.trades.at(i)
		if t.TS >= cutoff {
			px = append(px, t.Price)
		}
	}
	if len(px) < 2*swingArm+1 {
		return 0, false
	}

	best := math.Inf(1)
	found := false
	for i := swingArm; i < len(px)-swingArm; i++ {
		isHigh, isLow := true, true
		for j := i - swingArm; j <= i+swingArm; j++ {
			if j == i {
				continue
			}
			if px[j] >= px[i] {
				isHigh = false
			}
			if px[j] <= px[i] {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if !isHigh && !isLow {
			continue
		}
		d := math.Abs(s.lastPrice-px[i]) / s.lastPrice
		if d < best {
			best = d
		}
		found = true
	}
	if !found {
		return 0, false
	}
	return best, true
}
