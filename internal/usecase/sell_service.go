package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"github.com/smalltimedevs/aramid-trader/internal/metrics"
	"go.uber.org/zap"
)

// ReasonBalanceExhausted marks a position archived because the held balance
// was already at or below the dust threshold. Not an error: the tokens are
// gone, the record just catches up.
const ReasonBalanceExhausted = "balance exhausted"

type SellConfig struct {
	DustThreshold  float64
	RetryAttempts  int
	RetryDelay     time.Duration
	SettleDelay    time.Duration
	VerifyResidual bool
}

// SellService drives the close path for one position at a time. Close is
// idempotent: a trade already terminal is a no-op, and the registry's status
// guard keeps concurrent closers from both committing.
type SellService struct {
	trades   domain.TradeRepository
	gateway  domain.ExecutionGateway
	feed     domain.PriceFeed
	notifier domain.NotificationSink
	logger   *zap.Logger
	cfg      SellConfig

	done chan struct{}
	wg   sync.WaitGroup
}

func NewSellService(
	trades domain.TradeRepository,
	gateway domain.ExecutionGateway,
	feed domain.PriceFeed,
	notifier domain.NotificationSink,
	logger *zap.Logger,
	cfg SellConfig,
) *SellService {
	return &SellService{
		trades:   trades,
		gateway:  gateway,
		feed:     feed,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// Shutdown cancels pending residual checks and waits for them to finish.
func (s *SellService) Shutdown() {
	close(s.done)
	s.wg.Wait()
}

// Close sells the full held balance for the trade's token and records the
// terminal transition. priceHint, when positive, is the native price the
// caller just observed; otherwise a fresh price is fetched.
func (s *SellService) Close(ctx context.Context, tradeID string, priceHint float64, reason string) error {
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		if errors.Is(err, domain.ErrTradeNotFound) {
			return nil
		}
		return fmt.Errorf("read trade before close: %w", err)
	}
	if !trade.IsActive() {
		s.logger.Info("close requested for terminal trade, skipping",
			zap.String("trade_id", trade.ID),
			zap.String("status", string(trade.Status)))
		return nil
	}

	// Re-verify the held balance. At or below dust there is nothing worth
	// selling; archive and move on.
	balance, err := s.gateway.TokenBalance(ctx, trade.TokenAddress)
	if err != nil {
		return fmt.Errorf("verify token balance: %w", err)
	}
	if balance <= s.cfg.DustThreshold {
		return s.archiveExhausted(ctx, trade, balance)
	}

	exitNative, exitUSD := s.resolveExitPrice(ctx, trade, priceHint)
	if exitNative <= 0 {
		return fmt.Errorf("no usable exit price for %s: %w", trade.TokenAddress, domain.ErrPriceUnavailable)
	}

	// Sell the full held balance, never a partial amount, so no unmanaged
	// dust is left behind.
	var sellResult *domain.SellResult
	err = Retry(ctx, s.cfg.RetryAttempts, s.cfg.RetryDelay, func(ctx context.Context) error {
		res, err := s.gateway.Sell(ctx, trade.TokenAddress, balance)
		if err != nil {
			return err
		}
		sellResult = res
		return nil
	})
	if err != nil {
		metrics.RetryExhausted.WithLabelValues("sell").Inc()
		s.notifyError(ctx, trade, "sell execution failed", err)
		return err
	}

	realizedPct := trade.PriceChangePct(exitNative)

	// The sell cannot be undone, so the registry write gets its own retry
	// budget and a distinct error marker if it still fails.
	err = Retry(ctx, s.cfg.RetryAttempts, s.cfg.RetryDelay, func(ctx context.Context) error {
		return s.trades.RecordClose(ctx, trade.ID, exitNative, exitUSD, realizedPct, reason)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTradeNotActive) {
			// A concurrent closer won the status guard; their write stands.
			return nil
		}
		s.logger.Error("UNRECORDED SELL: registry write failed after confirmed execution",
			zap.String("trade_id", trade.ID),
			zap.String("tx_id", sellResult.TxID),
			zap.Error(err))
		s.notifyError(ctx, trade, "registry write failed after confirmed sell", err)
		return err
	}

	metrics.TradesClosed.WithLabelValues(reason).Inc()
	s.logger.Info("position closed",
		zap.String("trade_id", trade.ID),
		zap.String("token", trade.TokenAddress),
		zap.String("reason", reason),
		zap.Float64("realized_pct", realizedPct),
		zap.String("tx_id", sellResult.TxID))

	s.emit(ctx, domain.Notification{
		Kind:         domain.EventSell,
		TokenAddress: trade.TokenAddress,
		TokenName:    trade.TokenName,
		Title:        "Position closed",
		Fields: map[string]string{
			"Exit Price":    fmt.Sprintf("%.9f", exitNative),
			"Profit/Loss %": fmt.Sprintf("%+.2f%%", realizedPct),
			"Reason":        reason,
			"Transaction":   sellResult.TxID,
		},
	})

	if s.cfg.VerifyResidual {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.verifyResidual(trade.TokenAddress, trade.TokenName)
		}()
	}

	return nil
}

func (s *SellService) archiveExhausted(ctx context.Context, trade *domain.Trade, balance float64) error {
	err := Retry(ctx, s.cfg.RetryAttempts, s.cfg.RetryDelay, func(ctx context.Context) error {
		return s.trades.Archive(ctx, trade.ID, ReasonBalanceExhausted)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTradeNotActive) {
			return nil
		}
		return fmt.Errorf("archive exhausted trade %s: %w", trade.ID, err)
	}

	metrics.TradesClosed.WithLabelValues(ReasonBalanceExhausted).Inc()
	s.logger.Info("archived trade with exhausted balance",
		zap.String("trade_id", trade.ID),
		zap.String("token", trade.TokenAddress),
		zap.Float64("balance", balance))

	s.emit(ctx, domain.Notification{
		Kind:         domain.EventSell,
		TokenAddress: trade.TokenAddress,
		TokenName:    trade.TokenName,
		Title:        "Position archived",
		Fields: map[string]string{
			"Reason":  ReasonBalanceExhausted,
			"Balance": fmt.Sprintf("%f", balance),
		},
	})
	return nil
}

// resolveExitPrice prefers the caller's observed price, fetching fresh data
// for the USD leg. Feed failures degrade to the hint alone rather than
// blocking the close.
func (s *SellService) resolveExitPrice(ctx context.Context, trade *domain.Trade, priceHint float64) (float64, float64) {
	price, err := s.feed.GetPrice(ctx, trade.TokenAddress)
	if err != nil {
		s.logger.Warn("price fetch failed during close, using hint",
			zap.String("token", trade.TokenAddress),
			zap.Error(err))
		return priceHint, 0
	}
	if priceHint > 0 {
		return priceHint, price.PriceUSD
	}
	return price.PriceNative, price.PriceUSD
}

// verifyResidual re-checks the held balance after the settlement delay and
// runs at most one cleanup sell pass if meaningful dust remains.
func (s *SellService) verifyResidual(tokenAddress, tokenName string) {
	timer := time.NewTimer(s.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-s.done:
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	balance, err := s.gateway.TokenBalance(ctx, tokenAddress)
	if err != nil {
		s.logger.Warn("residual balance check failed",
			zap.String("token", tokenAddress),
			zap.Error(err))
		return
	}
	if balance <= s.cfg.DustThreshold {
		return
	}

	s.logger.Warn("residual balance after sell, running cleanup pass",
		zap.String("token", tokenAddress),
		zap.Float64("balance", balance))

	if _, err := s.gateway.Sell(ctx, tokenAddress, balance); err != nil {
		s.logger.Error("cleanup sell failed",
			zap.String("token", tokenAddress),
			zap.Error(err))
		s.notifyError(ctx, &domain.Trade{TokenAddress: tokenAddress, TokenName: tokenName},
			"cleanup sell failed", err)
	}
}

func (s *SellService) emit(ctx context.Context, n domain.Notification) {
	if err := s.notifier.Emit(ctx, n); err != nil {
		s.logger.Warn("notification failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (s *SellService) notifyError(ctx context.Context, trade *domain.Trade, title string, cause error) {
	s.emit(ctx, domain.Notification{
		Kind:         domain.EventError,
		TokenAddress: trade.TokenAddress,
		TokenName:    trade.TokenName,
		Title:        title,
		Fields:       map[string]string{"Error": cause.Error()},
	})
}
