package domain

import "time"

type TradeType string

const (
	TradeTypeLongHold  TradeType = "LONG_HOLD"
	TradeTypeQuickExit TradeType = "QUICK_EXIT"
)

type TradeStatus string

const (
	StatusActive    TradeStatus = "ACTIVE"
	StatusCompleted TradeStatus = "COMPLETED"
	StatusExpired   TradeStatus = "EXPIRED"
)

// Trade represents one speculative holding tracked by the engine, from the
// confirmed buy that creates it to the single terminal transition that closes
// it.
type Trade struct {
	ID               string
	TokenAddress     string
	TokenName        string
	EntryPriceNative float64
	EntryPriceUSD    float64
	AmountInvested   float64
	UnitsReceived    float64
	TargetGainPct    float64
	TargetLossPct    float64
	TradeType        TradeType
	Status           TradeStatus
	OpenedAt         time.Time

	// Populated only on the terminal transition.
	ExitPriceNative float64
	ExitPriceUSD    float64
	RealizedPct     float64
	CloseReason     string
	ClosedAt        time.Time
}

// IsActive reports whether the trade is still in its only non-terminal state.
func (t *Trade) IsActive() bool {
	return t.Status == StatusActive
}

// PriceChangePct returns the percentage move of currentPrice relative to the
// native entry price.
func (t *Trade) PriceChangePct(currentPrice float64) float64 {
	if t.EntryPriceNative == 0 {
		return 0
	}
	return (currentPrice - t.EntryPriceNative) / t.EntryPriceNative * 100
}

// TokenPrice is a price snapshot for a token in both the native quote and USD.
type TokenPrice struct {
	PriceNative float64
	PriceUSD    float64
}

// TokenMeta describes a token as reported by the price feed.
type TokenMeta struct {
	Name     string
	Symbol   string
	Decimals int
}

// BuyResult is the confirmed outcome of a buy at the execution gateway.
// UnitsPurchased is in raw token units, not adjusted for decimals.
type BuyResult struct {
	TxID           string
	UnitsPurchased float64
}

// SellResult is the confirmed outcome of a sell at the execution gateway.
type SellResult struct {
	TxID string
}

type AdviceAction string

const (
	AdviceHold   AdviceAction = "HOLD"
	AdviceSell   AdviceAction = "SELL"
	AdviceAdjust AdviceAction = "ADJUST"
)

// Advice is the advisory verdict for an open position. NewGainPct and
// NewLossPct are meaningful only when Action is AdviceAdjust.
type Advice struct {
	Action     AdviceAction
	Reason     string
	NewGainPct float64
	NewLossPct float64
}

type EventKind string

const (
	EventBuy    EventKind = "BUY"
	EventSell   EventKind = "SELL"
	EventAdjust EventKind = "ADJUST"
	EventError  EventKind = "ERROR"
)

// Notification is a lifecycle event reported through the NotificationSink.
type Notification struct {
	Kind         EventKind
	TokenAddress string
	TokenName    string
	Title        string
	Fields       map[string]string
}
