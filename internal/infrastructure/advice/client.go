package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

// Client calls the advisory service and parses its free-text verdict into a
// typed Advice. Anything it cannot parse comes back as HOLD.
type Client struct {
	endpoint string
	chainID  string
	client   *http.Client
}

func NewClient(endpoint, chainID string) *Client {
	return &Client{
		endpoint: endpoint,
		chainID:  chainID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Evaluate(ctx context.Context, tokenAddress string, entryPrice, targetGainPct, targetLossPct float64) (*domain.Advice, error) {
	payload := map[string]any{
		"chainId":              c.chainID,
		"contractAddress":      tokenAddress,
		"entryPrice":           entryPrice,
		"targetPercentageGain": targetGainPct,
		"targetPercentageLoss": targetLossPct,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("advice service error: %s", string(respBody))
	}

	var result struct {
		Advice string `json:"advice"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	return ParseAdvice(result.Advice), nil
}

var (
	gainPattern = regexp.MustCompile(`targetPercentageGain:\s*(\d+(?:\.\d+)?)`)
	lossPattern = regexp.MustCompile(`targetPercentageLoss:\s*(\d+(?:\.\d+)?)`)
)

// ParseAdvice maps the advisory text onto a verdict. The service answers with
// a "Final Output" line starting with "Sell Now", "Adjust Trade" or "Hold";
// an adjust verdict must carry both percentages or it degrades to HOLD.
func ParseAdvice(text string) *domain.Advice {
	verdict := finalOutput(text)

	switch {
	case strings.HasPrefix(verdict, "Sell Now"):
		return &domain.Advice{Action: domain.AdviceSell, Reason: trimVerdict(verdict, "Sell Now")}

	case strings.HasPrefix(verdict, "Adjust Trade"):
		gain, okGain := extractPct(gainPattern, verdict)
		loss, okLoss := extractPct(lossPattern, verdict)
		if !okGain || !okLoss {
			return &domain.Advice{Action: domain.AdviceHold, Reason: "adjust verdict missing targets"}
		}
		return &domain.Advice{Action: domain.AdviceAdjust, NewGainPct: gain, NewLossPct: loss}

	default:
		return &domain.Advice{Action: domain.AdviceHold}
	}
}

// finalOutput extracts the "**Final Output**:" line when the response carries
// the full analysis; a bare verdict string passes through unchanged.
func finalOutput(text string) string {
	marker := "**Final Output**:"
	if idx := strings.Index(text, marker); idx != -1 {
		rest := text[idx+len(marker):]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[:nl]
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

func trimVerdict(verdict, prefix string) string {
	return strings.TrimLeft(strings.TrimPrefix(verdict, prefix), " :-")
}

func extractPct(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var _ domain.AdviceProvider = (*Client)(nil)
