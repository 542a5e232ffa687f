package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

// MockTradeRepo is an in-memory TradeRepository for service tests.
type MockTradeRepo struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade

	CreateErr error
	CloseErr  error
	Closes    int
	Archives  int
	TopUps    int
}

func NewMockTradeRepo() *MockTradeRepo {
	return &MockTradeRepo{trades: make(map[string]*domain.Trade)}
}

func (m *MockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *MockTradeRepo) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	cp := *trade
	return &cp, nil
}

func (m *MockTradeRepo) ListActive(ctx context.Context) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, trade := range m.trades {
		if trade.Status == domain.StatusActive {
			cp := *trade
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTradeRepo) FindActiveByToken(ctx context.Context, tokenAddress string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trade := range m.trades {
		if trade.TokenAddress == tokenAddress && trade.Status == domain.StatusActive {
			cp := *trade
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockTradeRepo) UpdateTargets(ctx context.Context, id string, gainPct, lossPct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if trade.Status != domain.StatusActive {
		return domain.ErrTradeNotActive
	}
	trade.TargetGainPct = gainPct
	trade.TargetLossPct = lossPct
	return nil
}

func (m *MockTradeRepo) TopUp(ctx context.Context, id string, addedAmount, addedUnits float64) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	if trade.Status != domain.StatusActive {
		return nil, domain.ErrTradeNotActive
	}
	m.TopUps++
	trade.AmountInvested += addedAmount
	trade.UnitsReceived += addedUnits
	cp := *trade
	return &cp, nil
}

func (m *MockTradeRepo) RecordClose(ctx context.Context, id string, exitNative, exitUSD, realizedPct float64, reason string) error {
	if m.CloseErr != nil {
		return m.CloseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if trade.Status != domain.StatusActive {
		return domain.ErrTradeNotActive
	}
	m.Closes++
	trade.Status = domain.StatusCompleted
	trade.ExitPriceNative = exitNative
	trade.ExitPriceUSD = exitUSD
	trade.RealizedPct = realizedPct
	trade.CloseReason = reason
	trade.ClosedAt = time.Now().UTC()
	return nil
}

func (m *MockTradeRepo) Archive(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if trade.Status != domain.StatusActive {
		return domain.ErrTradeNotActive
	}
	m.Archives++
	trade.Status = domain.StatusExpired
	trade.CloseReason = reason
	trade.ClosedAt = time.Now().UTC()
	return nil
}

func (m *MockTradeRepo) ListClosed(ctx context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, trade := range m.trades {
		if trade.Status != domain.StatusActive {
			cp := *trade
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTradeRepo) RecentlyClosed(ctx context.Context, tokenAddress string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trade := range m.trades {
		if trade.TokenAddress == tokenAddress && !trade.ClosedAt.IsZero() && trade.ClosedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// MockGateway records executed orders and serves canned balances.
type MockGateway struct {
	mu sync.Mutex

	WalletBal float64
	TokenBal  float64
	BuyErr    error
	SellErr   error
	BuyUnits  float64

	Buys  []float64
	Sells []float64
}

func (m *MockGateway) Buy(ctx context.Context, tokenAddress string, amountNative float64) (*domain.BuyResult, error) {
	if m.BuyErr != nil {
		return nil, m.BuyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Buys = append(m.Buys, amountNative)
	return &domain.BuyResult{TxID: "mock-buy-tx", UnitsPurchased: m.BuyUnits}, nil
}

func (m *MockGateway) Sell(ctx context.Context, tokenAddress string, units float64) (*domain.SellResult, error) {
	if m.SellErr != nil {
		return nil, m.SellErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sells = append(m.Sells, units)
	return &domain.SellResult{TxID: "mock-sell-tx"}, nil
}

func (m *MockGateway) WalletBalance(ctx context.Context) (float64, error) {
	return m.WalletBal, nil
}

func (m *MockGateway) TokenBalance(ctx context.Context, tokenAddress string) (float64, error) {
	return m.TokenBal, nil
}

func (m *MockGateway) SellCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sells)
}

// MockPriceFeed serves one fixed price per token.
type MockPriceFeed struct {
	mu     sync.Mutex
	Prices map[string]*domain.TokenPrice
	Meta   *domain.TokenMeta
	Err    error
}

func (m *MockPriceFeed) GetPrice(ctx context.Context, tokenAddress string) (*domain.TokenPrice, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.Prices[tokenAddress]
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}
	return price, nil
}

func (m *MockPriceFeed) SetPrice(tokenAddress string, price *domain.TokenPrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Prices == nil {
		m.Prices = make(map[string]*domain.TokenPrice)
	}
	m.Prices[tokenAddress] = price
}

func (m *MockPriceFeed) GetTokenMeta(ctx context.Context, tokenAddress string) (*domain.TokenMeta, error) {
	if m.Meta == nil {
		return &domain.TokenMeta{Name: "MockToken", Symbol: "MOCK", Decimals: 9}, nil
	}
	return m.Meta, nil
}

func (m *MockPriceFeed) Subscribe(tokenAddresses []string) error { return nil }

func (m *MockPriceFeed) OnPriceUpdate(callback func(tokenAddress string, priceNative float64)) {}

// MockAdvisor returns one canned advice for every call.
type MockAdvisor struct {
	Advice *domain.Advice
	Err    error
}

func (m *MockAdvisor) Evaluate(ctx context.Context, tokenAddress string, entryPrice, targetGainPct, targetLossPct float64) (*domain.Advice, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Advice == nil {
		return &domain.Advice{Action: domain.AdviceHold}, nil
	}
	return m.Advice, nil
}

// MockNotifier collects emitted notifications.
type MockNotifier struct {
	mu     sync.Mutex
	Events []domain.Notification
}

func (m *MockNotifier) Emit(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, n)
	return nil
}

func (m *MockNotifier) Count(kind domain.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.Events {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

// MockMonitorStarter records which trades got a monitor.
type MockMonitorStarter struct {
	mu      sync.Mutex
	Started []string
}

func (m *MockMonitorStarter) Start(trade *domain.Trade) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, trade.ID)
	return true
}
