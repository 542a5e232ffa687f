package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

// DiscordSink delivers lifecycle events to a Discord webhook.
type DiscordSink struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSink) Emit(ctx context.Context, n domain.Notification) error {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s — %s**\n", n.Kind, n.Title)
	if n.TokenName != "" {
		fmt.Fprintf(&b, "Token: %s (%s)\n", n.TokenName, n.TokenAddress)
	} else if n.TokenAddress != "" {
		fmt.Fprintf(&b, "Token: %s\n", n.TokenAddress)
	}

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, n.Fields[k])
	}

	payload := map[string]string{"content": b.String()}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// NopSink discards all notifications. Used when no webhook is configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, domain.Notification) error { return nil }

var (
	_ domain.NotificationSink = (*DiscordSink)(nil)
	_ domain.NotificationSink = NopSink{}
)
