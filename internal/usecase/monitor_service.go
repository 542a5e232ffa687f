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

type MonitorConfig struct {
	PollInterval    time.Duration
	SettleGrace     time.Duration
	AdviceInterval  time.Duration
	CloseRetryDelay time.Duration
}

// MonitorService runs one watcher goroutine per active trade. The map is
// keyed by trade id, so a second Start for the same trade is refused and
// each position has at most one decision loop acting on it.
type MonitorService struct {
	trades   domain.TradeRepository
	feed     domain.PriceFeed
	advisor  domain.AdviceProvider
	seller   *SellService
	notifier domain.NotificationSink
	limiter  *RateLimiter
	policy   *ExitPolicy
	logger   *zap.Logger
	cfg      MonitorConfig

	mu       sync.Mutex
	monitors map[string]*tradeMonitor
	wg       sync.WaitGroup
}

type tradeMonitor struct {
	trade  *domain.Trade
	cancel context.CancelFunc
}

func NewMonitorService(
	trades domain.TradeRepository,
	feed domain.PriceFeed,
	advisor domain.AdviceProvider,
	seller *SellService,
	notifier domain.NotificationSink,
	limiter *RateLimiter,
	policy *ExitPolicy,
	logger *zap.Logger,
	cfg MonitorConfig,
) *MonitorService {
	return &MonitorService{
		trades:   trades,
		feed:     feed,
		advisor:  advisor,
		seller:   seller,
		notifier: notifier,
		limiter:  limiter,
		policy:   policy,
		logger:   logger,
		cfg:      cfg,
		monitors: make(map[string]*tradeMonitor),
	}
}

// Start launches a monitor for the trade. Returns false when one is already
// running for this trade id.
func (s *MonitorService) Start(trade *domain.Trade) bool {
	s.mu.Lock()
	if _, ok := s.monitors[trade.ID]; ok {
		s.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.monitors[trade.ID] = &tradeMonitor{trade: trade, cancel: cancel}
	s.mu.Unlock()

	if err := s.feed.Subscribe([]string{trade.TokenAddress}); err != nil {
		s.logger.Warn("price stream subscribe failed, polling only",
			zap.String("token", trade.TokenAddress),
			zap.Error(err))
	}

	metrics.ActiveMonitors.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.remove(trade.ID)
		s.run(ctx, trade)
	}()

	s.logger.Info("monitor started",
		zap.String("trade_id", trade.ID),
		zap.String("token", trade.TokenAddress),
		zap.String("type", string(trade.TradeType)))
	return true
}

// Stop cancels the monitor for the given trade id, if one is running.
func (s *MonitorService) Stop(tradeID string) bool {
	s.mu.Lock()
	m, ok := s.monitors[tradeID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	m.cancel()
	return true
}

func (s *MonitorService) IsRunning(tradeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[tradeID]
	return ok
}

// Running returns the trades currently under watch.
func (s *MonitorService) Running() []*domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	trades := make([]*domain.Trade, 0, len(s.monitors))
	for _, m := range s.monitors {
		trades = append(trades, m.trade)
	}
	return trades
}

// Recover lists all ACTIVE trades in the registry and starts a monitor for
// each that does not already have one. Called once at startup so positions
// survive a process restart.
func (s *MonitorService) Recover(ctx context.Context) (int, error) {
	active, err := s.trades.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active trades: %w", err)
	}

	started := 0
	for _, trade := range active {
		if s.Start(trade) {
			started++
		}
	}
	s.logger.Info("monitor recovery complete",
		zap.Int("active_trades", len(active)),
		zap.Int("monitors_started", started))
	return started, nil
}

// Shutdown cancels every monitor and waits for the loops to drain.
func (s *MonitorService) Shutdown() {
	s.mu.Lock()
	for _, m := range s.monitors {
		m.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// refresh replaces the map's trade snapshot with the freshly re-read record,
// so Running reports current targets and amounts, not Start-time state.
func (s *MonitorService) refresh(trade *domain.Trade) {
	s.mu.Lock()
	if m, ok := s.monitors[trade.ID]; ok {
		m.trade = trade
	}
	s.mu.Unlock()
}

func (s *MonitorService) remove(tradeID string) {
	s.mu.Lock()
	if m, ok := s.monitors[tradeID]; ok {
		m.cancel()
		delete(s.monitors, tradeID)
	}
	s.mu.Unlock()
	metrics.ActiveMonitors.Dec()
}

// run is the decision loop for one position. Every pass goes limiter, price,
// trade re-read, then policy; the loop exits when the trade reaches a
// terminal status or the context is cancelled.
func (s *MonitorService) run(ctx context.Context, trade *domain.Trade) {
	log := s.logger.With(
		zap.String("trade_id", trade.ID),
		zap.String("token", trade.TokenAddress))

	// Give the venue time to settle the entry before the first read, so a
	// fresh buy is not judged against pre-settlement data.
	if wait := time.Until(trade.OpenedAt.Add(s.cfg.SettleGrace)); wait > 0 {
		if !sleepCtx(ctx, wait) {
			return
		}
	}

	lastAdvice := time.Time{}

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		price, err := s.feed.GetPrice(ctx, trade.TokenAddress)
		if err != nil {
			if errors.Is(err, domain.ErrPriceUnavailable) {
				log.Debug("no pair data yet, deferring evaluation")
			} else {
				log.Warn("price fetch failed", zap.Error(err))
			}
			if !sleepCtx(ctx, s.cfg.PollInterval) {
				return
			}
			continue
		}

		// Re-read the record each pass so target adjustments and closes made
		// elsewhere take effect immediately.
		current, err := s.trades.GetTrade(ctx, trade.ID)
		if err != nil {
			if errors.Is(err, domain.ErrTradeNotFound) {
				log.Info("trade record gone, stopping monitor")
				return
			}
			log.Warn("trade re-read failed", zap.Error(err))
			if !sleepCtx(ctx, s.cfg.PollInterval) {
				return
			}
			continue
		}
		if !current.IsActive() {
			log.Info("trade closed elsewhere, stopping monitor",
				zap.String("status", string(current.Status)))
			return
		}
		trade = current
		s.refresh(current)

		advice := s.maybeAdvice(ctx, log, trade, &lastAdvice)

		verdict := s.policy.Evaluate(trade, price.PriceNative, advice, time.Now().UTC())
		metrics.MonitorEvaluations.WithLabelValues(string(verdict.Action)).Inc()

		switch verdict.Action {
		case ActionSell:
			log.Info("exit condition met",
				zap.String("reason", verdict.Reason),
				zap.Float64("price", price.PriceNative),
				zap.Float64("change_pct", trade.PriceChangePct(price.PriceNative)))
			if err := s.seller.Close(ctx, trade.ID, price.PriceNative, verdict.Reason); err != nil {
				// The position stays watched. Back off and re-evaluate
				// instead of abandoning it half-closed.
				log.Error("close failed, monitor re-armed", zap.Error(err))
				if !sleepCtx(ctx, s.cfg.CloseRetryDelay) {
					return
				}
				continue
			}
			return

		case ActionAdjust:
			s.applyAdjust(ctx, log, trade, verdict)

		case ActionHold:
			log.Debug("holding",
				zap.Float64("price", price.PriceNative),
				zap.Float64("change_pct", trade.PriceChangePct(price.PriceNative)))
		}

		if !sleepCtx(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// maybeAdvice consults the advisor on its own cadence, which is slower than
// the price poll. Any failure degrades to nil advice, never to a sell.
func (s *MonitorService) maybeAdvice(ctx context.Context, log *zap.Logger, trade *domain.Trade, last *time.Time) *domain.Advice {
	if s.advisor == nil || time.Since(*last) < s.cfg.AdviceInterval {
		return nil
	}
	*last = time.Now()

	advice, err := s.advisor.Evaluate(ctx, trade.TokenAddress, trade.EntryPriceNative, trade.TargetGainPct, trade.TargetLossPct)
	if err != nil {
		log.Warn("advice request failed, holding", zap.Error(err))
		return nil
	}
	return advice
}

func (s *MonitorService) applyAdjust(ctx context.Context, log *zap.Logger, trade *domain.Trade, verdict Verdict) {
	err := s.trades.UpdateTargets(ctx, trade.ID, verdict.NewGainPct, verdict.NewLossPct)
	if err != nil {
		log.Warn("target adjustment failed", zap.Error(err))
		return
	}

	log.Info("targets adjusted",
		zap.Float64("gain_pct", verdict.NewGainPct),
		zap.Float64("loss_pct", verdict.NewLossPct))

	if err := s.notifier.Emit(ctx, domain.Notification{
		Kind:         domain.EventAdjust,
		TokenAddress: trade.TokenAddress,
		TokenName:    trade.TokenName,
		Title:        "Targets adjusted",
		Fields: map[string]string{
			"New Gain %": fmt.Sprintf("%.2f", verdict.NewGainPct),
			"New Loss %": fmt.Sprintf("%.2f", verdict.NewLossPct),
		},
	}); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

// sleepCtx sleeps for d or until the context is cancelled, reporting whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
