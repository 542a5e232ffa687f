package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

// Client talks to the remote execution gateway that constructs and submits
// swap transactions on the engine's behalf. Wallet custody stays on the
// gateway side; this client only carries the API key.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) sendRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway error: %s", string(respBody))
	}

	return respBody, nil
}

func (c *Client) Buy(ctx context.Context, tokenAddress string, amountNative float64) (*domain.BuyResult, error) {
	payload := map[string]any{
		"outputMint": tokenAddress,
		"amount":     amountNative,
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, "/trade/buy", payload)
	if err != nil {
		return nil, &domain.ExecutionError{Op: "buy", Reason: "request failed", Err: err}
	}

	var result struct {
		Success         bool   `json:"success"`
		TxID            string `json:"txid"`
		TokensPurchased string `json:"tokensPurchased"`
		Error           string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, &domain.ExecutionError{Op: "buy", Reason: "bad response", Err: err}
	}
	if !result.Success || result.TxID == "" {
		return nil, &domain.ExecutionError{Op: "buy", Reason: orUnknown(result.Error)}
	}

	var units float64
	if _, err := fmt.Sscanf(result.TokensPurchased, "%f", &units); err != nil || units <= 0 {
		return nil, &domain.ExecutionError{Op: "buy", Reason: fmt.Sprintf("bad purchase amount %q", result.TokensPurchased)}
	}

	return &domain.BuyResult{TxID: result.TxID, UnitsPurchased: units}, nil
}

func (c *Client) Sell(ctx context.Context, tokenAddress string, units float64) (*domain.SellResult, error) {
	payload := map[string]any{
		"mint":   tokenAddress,
		"amount": units,
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, "/trade/sell", payload)
	if err != nil {
		return nil, &domain.ExecutionError{Op: "sell", Reason: "request failed", Err: err}
	}

	var result struct {
		Success bool   `json:"success"`
		TxID    string `json:"txid"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, &domain.ExecutionError{Op: "sell", Reason: "bad response", Err: err}
	}
	if !result.Success || result.TxID == "" {
		return nil, &domain.ExecutionError{Op: "sell", Reason: orUnknown(result.Error)}
	}

	return &domain.SellResult{TxID: result.TxID}, nil
}

func (c *Client) WalletBalance(ctx context.Context) (float64, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "/wallet/balance", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Balance float64 `json:"balance"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

func (c *Client) TokenBalance(ctx context.Context, tokenAddress string) (float64, error) {
	path := "/wallet/token-balance?mint=" + url.QueryEscape(tokenAddress)
	resp, err := c.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Balance float64 `json:"balance"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

func orUnknown(reason string) string {
	if reason == "" {
		return "unknown gateway failure"
	}
	return reason
}

var _ domain.ExecutionGateway = (*Client)(nil)
