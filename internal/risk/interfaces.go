package risk

import (
	"context"

	"github.com/songzhibin97/tokenlens/internal/models"
)

// Assessor derives heuristic risk flags from a market snapshot
type Assessor interface {
	// Assess evaluates a snapshot against the current thresholds
	Assess(ctx context.Context, snap *models.MarketSnapshot) (*Assessment, error)

	// SetThresholds replaces the thresholds
	SetThresholds(ctx context.Context, t *Thresholds) error
}

// Thresholds 风险阈值配置
type Thresholds struct {
	MinLiquidity    float64 `json:"min_liquidity"`
	MaxHoldersPct   float64 `json:"max_holders_pct"`
	MaxAbsChange24h float64 `json:"max_abs_change_24h"`
}

// DefaultThresholds are used when the configuration leaves them out.
var DefaultThresholds = Thresholds{
	MinLiquidity:    100_000,
	MaxHoldersPct:   40,
	MaxAbsChange24h: 15,
}

// Assessment 风险评估结果
type Assessment struct {
	RiskLevel   float64  `json:"risk_level"`
	Severity    string   `json:"severity"`
	RiskFactors []string `json:"risk_factors"`
}
