package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"go.uber.org/zap"
)

func sellFixture(t *testing.T) (*SellService, *MockTradeRepo, *MockGateway, *MockPriceFeed, *MockNotifier) {
	t.Helper()

	repo := NewMockTradeRepo()
	gateway := &MockGateway{TokenBal: 1000}
	feed := &MockPriceFeed{}
	notifier := &MockNotifier{}

	svc := NewSellService(repo, gateway, feed, notifier, zap.NewNop(), SellConfig{
		DustThreshold: 1,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})
	return svc, repo, gateway, feed, notifier
}

func activeTrade(id, token string) *domain.Trade {
	return &domain.Trade{
		ID:               id,
		TokenAddress:     token,
		TokenName:        "Fixture",
		EntryPriceNative: 1.00,
		AmountInvested:   0.5,
		UnitsReceived:    1000,
		TargetGainPct:    50,
		TargetLossPct:    20,
		TradeType:        domain.TradeTypeQuickExit,
		Status:           domain.StatusActive,
		OpenedAt:         time.Now().UTC().Add(-time.Minute),
	}
}

func TestClose_SellsAndRecords(t *testing.T) {
	svc, repo, gateway, feed, notifier := sellFixture(t)

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if gateway.SellCount() != 1 {
		t.Fatalf("expected 1 sell, got %d", gateway.SellCount())
	}
	if gateway.Sells[0] != 1000 {
		t.Errorf("expected full balance sold, got %f", gateway.Sells[0])
	}

	closed, _ := repo.GetTrade(context.Background(), "t1")
	if closed.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", closed.Status)
	}
	if closed.CloseReason != ReasonTargetGain {
		t.Errorf("expected close reason %q, got %q", ReasonTargetGain, closed.CloseReason)
	}
	if closed.RealizedPct < 49.9 || closed.RealizedPct > 50.1 {
		t.Errorf("expected realized pct near 50, got %f", closed.RealizedPct)
	}
	if closed.ExitPriceUSD != 220 {
		t.Errorf("expected USD exit from feed, got %f", closed.ExitPriceUSD)
	}

	if notifier.Count(domain.EventSell) != 1 {
		t.Errorf("expected 1 sell notification, got %d", notifier.Count(domain.EventSell))
	}
}

func TestClose_IdempotentSecondCall(t *testing.T) {
	svc, repo, gateway, feed, notifier := sellFixture(t)

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	if err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain); err != nil {
		t.Fatalf("second Close should no-op, got %v", err)
	}

	if gateway.SellCount() != 1 {
		t.Errorf("expected exactly 1 sell across both calls, got %d", gateway.SellCount())
	}
	if repo.Closes != 1 {
		t.Errorf("expected exactly 1 terminal write, got %d", repo.Closes)
	}
	if notifier.Count(domain.EventSell) != 1 {
		t.Errorf("expected exactly 1 notification, got %d", notifier.Count(domain.EventSell))
	}
}

func TestClose_UnknownTradeIsNoOp(t *testing.T) {
	svc, _, gateway, _, _ := sellFixture(t)

	if err := svc.Close(context.Background(), "missing", 1.0, ReasonTargetGain); err != nil {
		t.Fatalf("expected no-op for unknown trade, got %v", err)
	}
	if gateway.SellCount() != 0 {
		t.Errorf("expected no sells, got %d", gateway.SellCount())
	}
}

func TestClose_DustArchivesWithoutSell(t *testing.T) {
	svc, repo, gateway, feed, _ := sellFixture(t)
	gateway.TokenBal = 0.4

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	if err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if gateway.SellCount() != 0 {
		t.Errorf("expected no sell for dust balance, got %d", gateway.SellCount())
	}

	closed, _ := repo.GetTrade(context.Background(), "t1")
	if closed.Status != domain.StatusExpired {
		t.Errorf("expected EXPIRED, got %s", closed.Status)
	}
	if closed.CloseReason != ReasonBalanceExhausted {
		t.Errorf("expected reason %q, got %q", ReasonBalanceExhausted, closed.CloseReason)
	}
}

func TestClose_PriceFeedDownFallsBackToHint(t *testing.T) {
	svc, repo, _, feed, _ := sellFixture(t)
	feed.Err = domain.ErrPriceUnavailable

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade

	if err := svc.Close(context.Background(), "t1", 1.25, ReasonTimeLimit); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	closed, _ := repo.GetTrade(context.Background(), "t1")
	if closed.ExitPriceNative != 1.25 {
		t.Errorf("expected hint exit price 1.25, got %f", closed.ExitPriceNative)
	}
}

func TestClose_ShutdownCancelsPendingResidualCheck(t *testing.T) {
	repo := NewMockTradeRepo()
	gateway := &MockGateway{TokenBal: 1000}
	feed := &MockPriceFeed{}
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	svc := NewSellService(repo, gateway, feed, &MockNotifier{}, zap.NewNop(), SellConfig{
		DustThreshold:  1,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		SettleDelay:    time.Hour,
		VerifyResidual: true,
	})

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade

	if err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not cancel the pending residual check")
	}

	if gateway.SellCount() != 1 {
		t.Errorf("expected no cleanup sell after shutdown, got %d sells", gateway.SellCount())
	}
}

func TestClose_ResidualCleanupSellsLeftovers(t *testing.T) {
	repo := NewMockTradeRepo()
	gateway := &MockGateway{TokenBal: 1000}
	feed := &MockPriceFeed{}
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	svc := NewSellService(repo, gateway, feed, &MockNotifier{}, zap.NewNop(), SellConfig{
		DustThreshold:  1,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		SettleDelay:    time.Millisecond,
		VerifyResidual: true,
	})

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade

	if err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The mock keeps reporting a held balance, so the cleanup pass fires.
	waitFor(t, 2*time.Second, func() bool { return gateway.SellCount() == 2 })
	svc.Shutdown()
}

func TestClose_RegistryWriteFailureSurfaces(t *testing.T) {
	svc, repo, gateway, feed, notifier := sellFixture(t)
	repo.CloseErr = domain.ErrTradeNotFound

	trade := activeTrade("t1", "MintA")
	repo.trades[trade.ID] = trade
	feed.SetPrice("MintA", &domain.TokenPrice{PriceNative: 1.50, PriceUSD: 220})

	err := svc.Close(context.Background(), "t1", 1.50, ReasonTargetGain)
	if err == nil {
		t.Fatal("expected error when the terminal write cannot land")
	}
	if gateway.SellCount() != 1 {
		t.Errorf("sell should still have executed, got %d", gateway.SellCount())
	}
	if notifier.Count(domain.EventError) == 0 {
		t.Error("expected an error notification for the unrecorded sell")
	}
}
