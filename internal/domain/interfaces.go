package domain

import (
	"context"
	"time"
)

// TradeRepository defines storage operations for trades. A trade row is only
// ever created after a confirmed buy, and the terminal fields are only written
// by RecordClose or Archive.
type TradeRepository interface {
	CreateTrade(ctx context.Context, trade *Trade) error
	GetTrade(ctx context.Context, id string) (*Trade, error)
	ListActive(ctx context.Context) ([]*Trade, error)
	FindActiveByToken(ctx context.Context, tokenAddress string) (*Trade, error)

	// UpdateTargets and TopUp mutate only ACTIVE trades and return
	// ErrTradeNotActive otherwise.
	UpdateTargets(ctx context.Context, id string, gainPct, lossPct float64) error
	TopUp(ctx context.Context, id string, addedAmount, addedUnits float64) (*Trade, error)

	// RecordClose transitions an ACTIVE trade to COMPLETED with the given exit
	// fields. Archive transitions an ACTIVE trade to EXPIRED with zero exit
	// prices. Both return ErrTradeNotActive when the trade is already terminal,
	// which callers treat as an idempotent no-op.
	RecordClose(ctx context.Context, id string, exitNative, exitUSD, realizedPct float64, reason string) error
	Archive(ctx context.Context, id string, reason string) error

	ListClosed(ctx context.Context, limit int) ([]*Trade, error)
	RecentlyClosed(ctx context.Context, tokenAddress string, since time.Time) (bool, error)
}

// PriceFeed provides current prices and token metadata. Implementations may
// keep a streaming last-price cache; GetPrice remains the authoritative fetch
// and fails with ErrPriceUnavailable when the venue has no pair data yet.
type PriceFeed interface {
	GetPrice(ctx context.Context, tokenAddress string) (*TokenPrice, error)
	GetTokenMeta(ctx context.Context, tokenAddress string) (*TokenMeta, error)
	Subscribe(tokenAddresses []string) error
	OnPriceUpdate(callback func(tokenAddress string, priceNative float64))
}

// ExecutionGateway performs buys and sells against the venue and answers the
// wallet queries that gate them.
type ExecutionGateway interface {
	Buy(ctx context.Context, tokenAddress string, amountNative float64) (*BuyResult, error)
	Sell(ctx context.Context, tokenAddress string, units float64) (*SellResult, error)
	WalletBalance(ctx context.Context) (float64, error)
	TokenBalance(ctx context.Context, tokenAddress string) (float64, error)
}

// AdviceProvider returns an advisory verdict for an open position. A failure
// or unparseable response is reported as an error and treated as HOLD by
// callers, never as SELL.
type AdviceProvider interface {
	Evaluate(ctx context.Context, tokenAddress string, entryPrice, targetGainPct, targetLossPct float64) (*Advice, error)
}

// NotificationSink reports lifecycle events. Delivery is best-effort: errors
// are for logging only and must never influence position state.
type NotificationSink interface {
	Emit(ctx context.Context, n Notification) error
}
