package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"github.com/smalltimedevs/aramid-trader/internal/metrics"
	"go.uber.org/zap"
)

// MonitorStarter is the slice of the monitor service the buy path needs:
// spinning up a watcher for a freshly opened position.
type MonitorStarter interface {
	Start(trade *domain.Trade) bool
}

type BuyConfig struct {
	WalletFloor    float64
	BalanceRecheck time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	DefaultGainPct float64
	DefaultLossPct float64
}

type BuyRequest struct {
	TokenAddress  string
	TokenName     string
	Amount        float64
	TargetGainPct float64
	TargetLossPct float64
	TradeType     domain.TradeType
}

// BuyService opens positions. A buy against a token that already has an
// active trade tops up the existing record instead of opening a second one,
// so each token keeps a single monitor.
type BuyService struct {
	trades   domain.TradeRepository
	gateway  domain.ExecutionGateway
	feed     domain.PriceFeed
	notifier domain.NotificationSink
	monitors MonitorStarter
	logger   *zap.Logger
	cfg      BuyConfig
}

func NewBuyService(
	trades domain.TradeRepository,
	gateway domain.ExecutionGateway,
	feed domain.PriceFeed,
	notifier domain.NotificationSink,
	monitors MonitorStarter,
	logger *zap.Logger,
	cfg BuyConfig,
) *BuyService {
	return &BuyService{
		trades:   trades,
		gateway:  gateway,
		feed:     feed,
		notifier: notifier,
		monitors: monitors,
		logger:   logger,
		cfg:      cfg,
	}
}

// Execute runs the full buy flow: wallet floor gate, execution, then the
// registry write. The trade record is written only after the gateway
// confirms the purchase, so the registry never claims tokens that were
// never bought.
func (b *BuyService) Execute(ctx context.Context, req BuyRequest) (*domain.Trade, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("buy amount must be positive, got %f", req.Amount)
	}
	if req.TargetGainPct <= 0 {
		req.TargetGainPct = b.cfg.DefaultGainPct
	}
	if req.TargetLossPct <= 0 {
		req.TargetLossPct = b.cfg.DefaultLossPct
	}
	if req.TradeType == "" {
		req.TradeType = domain.TradeTypeQuickExit
	}

	if err := b.awaitWalletFloor(ctx, req.Amount); err != nil {
		return nil, err
	}

	meta := b.tokenMeta(ctx, req)
	price, err := b.feed.GetPrice(ctx, req.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("entry price for %s: %w", req.TokenAddress, err)
	}

	existing, err := b.trades.FindActiveByToken(ctx, req.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("lookup active trade: %w", err)
	}

	var buyResult *domain.BuyResult
	err = Retry(ctx, b.cfg.RetryAttempts, b.cfg.RetryDelay, func(ctx context.Context) error {
		res, err := b.gateway.Buy(ctx, req.TokenAddress, req.Amount)
		if err != nil {
			return err
		}
		buyResult = res
		return nil
	})
	if err != nil {
		metrics.RetryExhausted.WithLabelValues("buy").Inc()
		return nil, fmt.Errorf("buy execution for %s: %w", req.TokenAddress, err)
	}

	units := buyResult.UnitsPurchased / math.Pow10(meta.Decimals)

	if existing != nil {
		return b.topUp(ctx, existing, req, units, buyResult.TxID)
	}
	return b.open(ctx, req, meta, price, units, buyResult.TxID)
}

func (b *BuyService) open(
	ctx context.Context,
	req BuyRequest,
	meta *domain.TokenMeta,
	price *domain.TokenPrice,
	units float64,
	txID string,
) (*domain.Trade, error) {
	trade := &domain.Trade{
		ID:               uuid.NewString(),
		TokenAddress:     req.TokenAddress,
		TokenName:        meta.Name,
		EntryPriceNative: price.PriceNative,
		EntryPriceUSD:    price.PriceUSD,
		AmountInvested:   req.Amount,
		UnitsReceived:    units,
		TargetGainPct:    req.TargetGainPct,
		TargetLossPct:    req.TargetLossPct,
		TradeType:        req.TradeType,
		Status:           domain.StatusActive,
		OpenedAt:         time.Now().UTC(),
	}

	if err := b.trades.CreateTrade(ctx, trade); err != nil {
		// The purchase happened but the record did not land. Surface loudly;
		// the tokens sit in the wallet either way.
		b.logger.Error("UNRECORDED BUY: registry write failed after confirmed execution",
			zap.String("token", req.TokenAddress),
			zap.String("tx_id", txID),
			zap.Error(err))
		b.notifyError(ctx, req, "registry write failed after confirmed buy", err)
		return nil, err
	}

	metrics.TradesOpened.WithLabelValues(string(trade.TradeType)).Inc()
	b.logger.Info("position opened",
		zap.String("trade_id", trade.ID),
		zap.String("token", trade.TokenAddress),
		zap.Float64("amount", trade.AmountInvested),
		zap.Float64("units", trade.UnitsReceived),
		zap.Float64("entry_price", trade.EntryPriceNative),
		zap.String("tx_id", txID))

	b.emit(ctx, domain.Notification{
		Kind:         domain.EventBuy,
		TokenAddress: trade.TokenAddress,
		TokenName:    trade.TokenName,
		Title:        "Position opened",
		Fields: map[string]string{
			"Amount":      fmt.Sprintf("%f", trade.AmountInvested),
			"Units":       fmt.Sprintf("%f", trade.UnitsReceived),
			"Entry Price": fmt.Sprintf("%.9f", trade.EntryPriceNative),
			"Type":        string(trade.TradeType),
			"Transaction": txID,
		},
	})

	if !b.monitors.Start(trade) {
		b.logger.Warn("monitor already running for new trade", zap.String("trade_id", trade.ID))
	}
	return trade, nil
}

func (b *BuyService) topUp(
	ctx context.Context,
	existing *domain.Trade,
	req BuyRequest,
	units float64,
	txID string,
) (*domain.Trade, error) {
	updated, err := b.trades.TopUp(ctx, existing.ID, req.Amount, units)
	if err != nil {
		b.logger.Error("UNRECORDED BUY: top-up write failed after confirmed execution",
			zap.String("trade_id", existing.ID),
			zap.String("tx_id", txID),
			zap.Error(err))
		b.notifyError(ctx, req, "registry write failed after confirmed top-up", err)
		return nil, err
	}

	b.logger.Info("position topped up",
		zap.String("trade_id", updated.ID),
		zap.String("token", updated.TokenAddress),
		zap.Float64("added_amount", req.Amount),
		zap.Float64("added_units", units),
		zap.Float64("total_invested", updated.AmountInvested),
		zap.String("tx_id", txID))

	b.emit(ctx, domain.Notification{
		Kind:         domain.EventBuy,
		TokenAddress: updated.TokenAddress,
		TokenName:    updated.TokenName,
		Title:        "Position topped up",
		Fields: map[string]string{
			"Added Amount":   fmt.Sprintf("%f", req.Amount),
			"Added Units":    fmt.Sprintf("%f", units),
			"Total Invested": fmt.Sprintf("%f", updated.AmountInvested),
			"Transaction":    txID,
		},
	})
	return updated, nil
}

// awaitWalletFloor blocks until the wallet can fund the buy without
// dropping below the configured floor, rechecking on a fixed cadence.
func (b *BuyService) awaitWalletFloor(ctx context.Context, amount float64) error {
	for {
		balance, err := b.gateway.WalletBalance(ctx)
		if err != nil {
			return fmt.Errorf("wallet balance: %w", err)
		}
		if balance-amount >= b.cfg.WalletFloor {
			return nil
		}

		b.logger.Warn("wallet below floor, waiting before retry",
			zap.Float64("balance", balance),
			zap.Float64("amount", amount),
			zap.Float64("floor", b.cfg.WalletFloor))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.BalanceRecheck):
		}
	}
}

func (b *BuyService) tokenMeta(ctx context.Context, req BuyRequest) *domain.TokenMeta {
	meta, err := b.feed.GetTokenMeta(ctx, req.TokenAddress)
	if err != nil || meta == nil {
		b.logger.Warn("token metadata unavailable, using fallbacks",
			zap.String("token", req.TokenAddress),
			zap.Error(err))
		name := req.TokenName
		if name == "" {
			name = req.TokenAddress
		}
		return &domain.TokenMeta{Name: name, Decimals: 9}
	}
	if meta.Name == "" {
		meta.Name = req.TokenName
	}
	return meta
}

func (b *BuyService) emit(ctx context.Context, n domain.Notification) {
	if err := b.notifier.Emit(ctx, n); err != nil {
		b.logger.Warn("notification failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (b *BuyService) notifyError(ctx context.Context, req BuyRequest, title string, cause error) {
	b.emit(ctx, domain.Notification{
		Kind:         domain.EventError,
		TokenAddress: req.TokenAddress,
		TokenName:    req.TokenName,
		Title:        title,
		Fields:       map[string]string{"Error": cause.Error()},
	})
}
