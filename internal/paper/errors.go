package paper

import "errors"

// Domain errors. These are expected outcomes reported to the caller as values;
// they never corrupt engine state and never cross the ingestion boundary.
var (
	ErrPositionExists  = errors.New("position already open for symbol")
	ErrMaxPositions    = errors.New("max concurrent positions reached")
	ErrNoPosition      = errors.New("no open position for symbol")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidSide     = errors.New("side must be long or short")
	ErrNoMarketData    = errors.New("no market data for symbol")
)
