package usecase

import (
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

type VerdictAction string

const (
	ActionHold   VerdictAction = "HOLD"
	ActionSell   VerdictAction = "SELL"
	ActionAdjust VerdictAction = "ADJUST"
)

// Close reasons written into the trade record on a SELL verdict.
const (
	ReasonTargetGain = "target gain reached"
	ReasonTargetLoss = "target loss reached"
	ReasonTimeLimit  = "time limit"
	ReasonAdvisory   = "advisory"
)

// Verdict is the single decision the policy produces for one evaluation.
type Verdict struct {
	Action     VerdictAction
	Reason     string
	NewGainPct float64
	NewLossPct float64
}

// ExitPolicy combines profit/loss targets, holding-time ceilings and the
// advisory verdict into one decision. Evaluate is pure: it touches no state
// and takes the clock as a parameter.
type ExitPolicy struct {
	longHoldMax  time.Duration
	quickExitMax time.Duration
}

func NewExitPolicy(longHoldMax, quickExitMax time.Duration) *ExitPolicy {
	return &ExitPolicy{
		longHoldMax:  longHoldMax,
		quickExitMax: quickExitMax,
	}
}

// Evaluate applies the exit rules in precedence order, first match wins:
// gain target, loss target, holding-time ceiling, advisory sell, advisory
// adjust, hold. A nil advice never produces a SELL.
func (p *ExitPolicy) Evaluate(trade *domain.Trade, currentPrice float64, advice *domain.Advice, now time.Time) Verdict {
	changePct := trade.PriceChangePct(currentPrice)

	if changePct >= trade.TargetGainPct {
		return Verdict{Action: ActionSell, Reason: ReasonTargetGain}
	}

	if changePct <= -trade.TargetLossPct {
		return Verdict{Action: ActionSell, Reason: ReasonTargetLoss}
	}

	if p.timeLimitExceeded(trade, now) {
		return Verdict{Action: ActionSell, Reason: ReasonTimeLimit}
	}

	if advice != nil {
		switch advice.Action {
		case domain.AdviceSell:
			return Verdict{Action: ActionSell, Reason: ReasonAdvisory}
		case domain.AdviceAdjust:
			if advice.NewGainPct > 0 && advice.NewLossPct > 0 {
				return Verdict{Action: ActionAdjust, NewGainPct: advice.NewGainPct, NewLossPct: advice.NewLossPct}
			}
		}
	}

	return Verdict{Action: ActionHold}
}

func (p *ExitPolicy) timeLimitExceeded(trade *domain.Trade, now time.Time) bool {
	held := now.Sub(trade.OpenedAt)
	switch trade.TradeType {
	case domain.TradeTypeLongHold:
		return held >= p.longHoldMax
	case domain.TradeTypeQuickExit:
		return held >= p.quickExitMax
	}
	return false
}
