package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/songzhibin97/tokenlens/internal/analytics"
	"github.com/songzhibin97/tokenlens/internal/models"
)

type BasicAssessor struct {
	thresholds Thresholds
	mu         sync.RWMutex
}

func NewBasicAssessor(initial Thresholds) *BasicAssessor {
	if initial.MinLiquidity <= 0 || initial.MaxHoldersPct <= 0 || initial.MaxAbsChange24h <= 0 {
		initial = DefaultThresholds
	}
	return &BasicAssessor{thresholds: initial}
}

func (a *BasicAssessor) Assess(ctx context.Context, snap *models.MarketSnapshot) (*Assessment, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot to assess")
	}

	a.mu.RLock()
	t := a.thresholds
	a.mu.RUnlock()

	assessment := &Assessment{
		RiskFactors: make([]string, 0),
	}

	// 价格缺失时其他指标参考意义有限
	if !snap.Price.Available() {
		assessment.RiskLevel += 0.3
		assessment.RiskFactors = append(assessment.RiskFactors, "Price data unavailable")
	}

	if liquidity, ok := snap.Liquidity.Value(); ok && liquidity < t.MinLiquidity {
		assessment.RiskLevel += 0.25
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("Thin liquidity: estimated %s, below %s", snap.LiquidityText(), models.MetricOf(t.MinLiquidity).Format(0)))
	}

	if holders, ok := snap.TopHoldersPct.Value(); ok && holders > t.MaxHoldersPct {
		assessment.RiskLevel += 0.25
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("Top holders control %s of supply", snap.HoldersText()))
	}

	if change, ok := snap.PriceChange24h.Value(); ok && math.Abs(change) > t.MaxAbsChange24h {
		assessment.RiskLevel += 0.2
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("Sharp 24h move: %s", snap.ChangeText()))
	}

	if snap.WhaleActivity == analytics.WhaleHigh {
		assessment.RiskLevel += 0.1
		assessment.RiskFactors = append(assessment.RiskFactors, "High whale activity")
	}

	assessment.RiskLevel = math.Round(assessment.RiskLevel*100) / 100
	assessment.Severity = getSeverityLevel(assessment.RiskLevel)

	return assessment, nil
}

func (a *BasicAssessor) SetThresholds(ctx context.Context, t *Thresholds) error {
	if t.MinLiquidity <= 0 || t.MaxHoldersPct <= 0 || t.MaxAbsChange24h <= 0 {
		return fmt.Errorf("invalid risk thresholds: all values must be positive")
	}

	a.mu.Lock()
	a.thresholds = *t
	a.mu.Unlock()

	return nil
}

func getSeverityLevel(level float64) string {
	switch {
	case level >= 0.5:
		return "HIGH"
	case level >= 0.25:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

var _ Assessor = (*BasicAssessor)(nil)
