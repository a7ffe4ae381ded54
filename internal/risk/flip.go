package risk

import (
	"tickscalper/internal/decision"
	"tickscalper/internal/observ"
)

// Action is what the controller tells the position engine to do.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionFlip
)

// Command is the controller's output for one decision tick.
type Command struct {
	Action Action
	Side   decision.Side
}

// Config holds the debounce parameters.
type Config struct {
	CooldownMs       int64 // minimum gap between position-opening actions per symbol
	FlipConfirmCount int   // consecutive contrarian decisions required to flip
	FlipIntervalMs   int64 // minimum gap between flips per symbol
}

// flipState tracks consecutive contrarian confirmations for one symbol.
type flipState struct {
	want   decision.Side
	count  int
	lastTS int64
}

// Controller converts raw decisions into open/flip commands with hysteresis:
// a single contrarian tick never reverses a position, only sustained contrarian
// evidence does, and opens are rate-limited by a per-symbol cooldown.
//
// The controller is not safe for concurrent use; the dispatcher serializes
// access together with the rest of the pipeline.
type Controller struct {
	cfg      Config
	lastOpen map[string]int64 // symbol -> ts of last opening action (ms)
	lastFlip map[string]int64 // symbol -> ts of last executed flip (ms)
	flips    map[string]*flipState
}

func NewController(cfg Config) *Controller {
	if cfg.FlipConfirmCount <= 0 {
		cfg.FlipConfirmCount = 2
	}
	return &Controller{
		cfg:      cfg,
		lastOpen: make(map[string]int64),
		lastFlip: make(map[string]int64),
		flips:    make(map[string]*flipState),
	}
}

// Apply evaluates one decision against the current position state and returns
// the command to execute. Callers must report executed commands back through
// RecordOpen/RecordFlip so the cooldown clocks advance only on success.
func (c *Controller) Apply(symbol string, d decision.Side, posSide decision.Side, hasPosition bool, ts int64) Command {
	if !hasPosition {
		// Flat: no confirmation counting, just the cooldown.
		delete(c.flips, symbol)
		if d == decision.None {
			return Command{Action: ActionNone}
		}
		if last, ok := c.lastOpen[symbol]; ok && ts-last < c.cfg.CooldownMs {
			observ.IncCounter("controller_cooldown_blocks_total", map[string]string{"symbol": symbol})
			return Command{Action: ActionNone}
		}
		return Command{Action: ActionOpen, Side: d}
	}

	// Position open: aligned or absent signal clears any pending confirmation.
	if d == decision.None || d == posSide {
		delete(c.flips, symbol)
		return Command{Action: ActionNone}
	}

	opposite := posSide.Opposite()
	if d != opposite {
		// A third state (should not happen with two sides) resets the buffer.
		delete(c.flips, symbol)
		return Command{Action: ActionNone}
	}

	fs := c.flips[symbol]
	if fs == nil || fs.want != opposite {
		fs = &flipState{want: opposite}
		c.flips[symbol] = fs
	}
	fs.count++
	fs.lastTS = ts
	observ.IncCounter("controller_flip_candidates_total", map[string]string{"symbol": symbol, "want": string(opposite)})

	if fs.count < c.cfg.FlipConfirmCount {
		return Command{Action: ActionNone}
	}
	// Confirmed. Flips bypass the open cooldown but keep their own interval;
	// the counter is held until the interval clears.
	if last, ok := c.lastFlip[symbol]; ok && ts-last < c.cfg.FlipIntervalMs {
		observ.IncCounter("controller_flip_interval_blocks_total", map[string]string{"symbol": symbol})
		return Command{Action: ActionNone}
	}
	delete(c.flips, symbol)
	return Command{Action: ActionFlip, Side: opposite}
}

// RecordOpen marks a successful position-opening action for cooldown purposes.
func (c *Controller) RecordOpen(symbol string, ts int64) {
	c.lastOpen[symbol] = ts
}

// RecordFlip marks a successful flip; the re-open counts as an opening action too.
func (c *Controller) RecordFlip(symbol string, ts int64) {
	c.lastFlip[symbol] = ts
	c.lastOpen[symbol] = ts
}

// Pending returns the confirmation progress for a symbol, for diagnostics.
func (c *Controller) Pending(symbol string) (decision.Side, int, bool) {
	fs, ok := c.flips[symbol]
	if !ok {
		return decision.None, 0, false
	}
	return fs.want, fs.count, true
}
