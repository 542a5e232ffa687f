package domain

import (
	"errors"
	"fmt"
)

// ErrPriceUnavailable is returned by PriceFeed.GetPrice when the venue has no
// pair data for the token yet. Monitors treat it as a deferral, not a failure.
var ErrPriceUnavailable = errors.New("no price data available for token")

// ErrTradeNotFound is returned by TradeRepository.GetTrade for unknown ids.
var ErrTradeNotFound = errors.New("trade not found")

// ErrTradeNotActive is returned by repository mutations that require an ACTIVE
// trade. The close path relies on it to make a second close invocation a
// no-op.
var ErrTradeNotActive = errors.New("trade is not active")

// ExecutionError wraps a failure reported by the execution gateway.
type ExecutionError struct {
	Op     string // "buy" or "sell"
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution %s failed: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("execution %s failed: %s", e.Op, e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
