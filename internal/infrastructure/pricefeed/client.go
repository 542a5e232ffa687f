package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"go.uber.org/zap"
)

// priceCacheTTL bounds how long a streamed price is trusted before GetPrice
// falls back to a REST fetch.
const priceCacheTTL = 3 * time.Second

type cachedPrice struct {
	price domain.TokenPrice
	at    time.Time
}

// Client talks to the pair-data service over REST and keeps an optional
// websocket stream of last prices for subscribed tokens.
type Client struct {
	baseURL string
	wsURL   string
	chainID string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	wsConn    *websocket.Conn
	callbacks []func(tokenAddress string, priceNative float64)
	cache     map[string]cachedPrice
}

func NewClient(baseURL, wsURL, chainID string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		chainID: chainID,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		cache:   make(map[string]cachedPrice),
	}
}

// pair mirrors the relevant slice of the pair-data payload. Prices come back
// as strings.
type pair struct {
	DexID     string `json:"dexId"`
	BaseToken struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Decimals    int    `json:"decimals"`
}

func (c *Client) fetchPairs(ctx context.Context, tokenAddress string) ([]pair, error) {
	url := fmt.Sprintf("%s/token-pairs/v1/%s/%s", c.baseURL, c.chainID, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("price feed error: %s", string(body))
	}

	var pairs []pair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// firstValidPair skips aggregator placeholder listings the same way the
// trading side does, so entry and exit prices come from the same venue class.
func firstValidPair(pairs []pair) (pair, bool) {
	for _, p := range pairs {
		if p.DexID != "pumpfun" {
			return p, true
		}
	}
	return pair{}, false
}

func (c *Client) GetPrice(ctx context.Context, tokenAddress string) (*domain.TokenPrice, error) {
	c.mu.Lock()
	if cached, ok := c.cache[tokenAddress]; ok && time.Since(cached.at) < priceCacheTTL {
		price := cached.price
		c.mu.Unlock()
		return &price, nil
	}
	c.mu.Unlock()

	pairs, err := c.fetchPairs(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	p, ok := firstValidPair(pairs)
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}

	native, err := strconv.ParseFloat(p.PriceNative, 64)
	if err != nil {
		return nil, fmt.Errorf("parse native price %q: %w", p.PriceNative, err)
	}
	usd, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return nil, fmt.Errorf("parse usd price %q: %w", p.PriceUSD, err)
	}

	return &domain.TokenPrice{PriceNative: native, PriceUSD: usd}, nil
}

func (c *Client) GetTokenMeta(ctx context.Context, tokenAddress string) (*domain.TokenMeta, error) {
	pairs, err := c.fetchPairs(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	p, ok := firstValidPair(pairs)
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}

	decimals := p.Decimals
	if decimals == 0 {
		decimals = 9
	}

	return &domain.TokenMeta{
		Name:     p.BaseToken.Name,
		Symbol:   p.BaseToken.Symbol,
		Decimals: decimals,
	}, nil
}

// --- WebSocket stream ---

func (c *Client) OnPriceUpdate(callback func(tokenAddress string, priceNative float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

func (c *Client) Subscribe(tokenAddresses []string) error {
	if c.wsURL == "" || len(tokenAddresses) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
		if err != nil {
			return err
		}
		c.wsConn = conn
		go c.readLoop(conn)
	}

	args := make([]any, len(tokenAddresses))
	for i, addr := range tokenAddresses {
		args[i] = "price." + addr
	}
	return c.wsConn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.wsConn == conn {
			c.wsConn = nil
		}
		c.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("price stream read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				PriceNative string `json:"priceNative"`
				PriceUSD    string `json:"priceUsd"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			c.logger.Debug("price stream unmarshal error", zap.Error(err))
			continue
		}

		if !strings.HasPrefix(event.Topic, "price.") {
			continue
		}
		tokenAddress := strings.TrimPrefix(event.Topic, "price.")

		native, err := strconv.ParseFloat(event.Data.PriceNative, 64)
		if err != nil || native <= 0 {
			continue
		}
		usd, _ := strconv.ParseFloat(event.Data.PriceUSD, 64)

		c.mu.Lock()
		c.cache[tokenAddress] = cachedPrice{
			price: domain.TokenPrice{PriceNative: native, PriceUSD: usd},
			at:    time.Now(),
		}
		callbacks := make([]func(string, float64), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(tokenAddress, native)
		}
	}
}

var _ domain.PriceFeed = (*Client)(nil)
