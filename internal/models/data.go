package models

import (
	"time"
	"unicode/utf8"
)

// QueryKind 查询分类，一经确定不可更改
type QueryKind string

const (
	KindToken    QueryKind = "token"
	KindContract QueryKind = "contract"
)

// TriggerSource 分析的触发来源
type TriggerSource string

const (
	SourceSelection TriggerSource = "selection"
	SourceCursor    TriggerSource = "cursor"
	SourceManual    TriggerSource = "manual"
)

// Valid reports whether s is one of the known trigger sources.
func (s TriggerSource) Valid() bool {
	switch s {
	case SourceSelection, SourceCursor, SourceManual:
		return true
	}
	return false
}

// Resolution 价格数据源中的代币标识
type Resolution struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// MarketSnapshot 单次获取的市场数据快照
type MarketSnapshot struct {
	CanonicalID       string    `json:"coingeckoId"`
	Symbol            string    `json:"symbol"`
	Name              string    `json:"fullName"`
	Icon              string    `json:"icon,omitempty"`
	Price             Metric    `json:"price"`
	MarketCap         Metric    `json:"marketCap"`
	Volume24h         Metric    `json:"volume24h"`
	PriceChange24h    Metric    `json:"priceChange24h"`
	CirculatingSupply Metric    `json:"circulatingSupply"`
	TotalSupply       Metric    `json:"totalSupply"`
	Liquidity         Metric    `json:"liquidity"`
	TopHoldersPct     Metric    `json:"topHoldersConcentration"`
	WhaleActivity     string    `json:"whaleActivity"`
	Source            string    `json:"source"`
	FetchedAt         time.Time `json:"fetchedAt"`
}

// LiquidityShare is the fraction of 24h volume used as a liquidity proxy.
const LiquidityShare = 0.1

// EstimateLiquidity derives the liquidity proxy from 24h volume.
func EstimateLiquidity(volume Metric) Metric {
	v, ok := volume.Value()
	if !ok {
		return Unavailable()
	}
	return MetricOf(v * LiquidityShare)
}

func (s *MarketSnapshot) PriceText() string     { return s.Price.Format(4) }
func (s *MarketSnapshot) MarketCapText() string { return s.MarketCap.Format(0) }
func (s *MarketSnapshot) VolumeText() string    { return s.Volume24h.Format(0) }
func (s *MarketSnapshot) SupplyText() string    { return s.CirculatingSupply.Format(2) }
func (s *MarketSnapshot) LiquidityText() string { return s.Liquidity.Format(0) }
func (s *MarketSnapshot) ChangeText() string    { return s.PriceChange24h.Percent(2) }
func (s *MarketSnapshot) HoldersText() string   { return s.TopHoldersPct.Percent(0) }

// WhaleText returns the whale activity label or the unavailable sentinel.
func (s *MarketSnapshot) WhaleText() string {
	if s.WhaleActivity == "" {
		return NotAvailable
	}
	return s.WhaleActivity
}

// AnalysisRecord 一次分析的完整结果，创建后不再修改
type AnalysisRecord struct {
	ID           string          `json:"id"`
	Token        string          `json:"token"`
	Analysis     string          `json:"analysis"`
	Snapshot     *MarketSnapshot `json:"onChainData,omitempty"`
	DataError    string          `json:"dataError,omitempty"`
	RiskFlags    []string        `json:"riskFlags,omitempty"`
	// 风险等级 LOW/MEDIUM/HIGH，仅在有行情快照时评估
	RiskSeverity string          `json:"riskSeverity,omitempty"`
	RiskScore    float64         `json:"riskScore,omitempty"`
	Kind         QueryKind       `json:"type"`
	Source       TriggerSource   `json:"source"`
	Timestamp    time.Time       `json:"timestamp"`
	Preview      string          `json:"preview"`
}

// HasMarketData reports whether the record carries a usable token snapshot.
func (r *AnalysisRecord) HasMarketData() bool {
	return r.Kind == KindToken && r.Snapshot != nil && r.DataError == ""
}

// Retention rules shared by the store and the presentation layer.
const (
	LatestDisplayWindow = 30 * time.Minute
	LatestRetention     = time.Hour
	HistoryCap          = 50
)

const previewLength = 100

// Preview returns the first 100 characters of the analysis, with an ellipsis when cut.
func Preview(analysis string) string {
	if utf8.RuneCountInString(analysis) <= previewLength {
		return analysis
	}
	runes := []rune(analysis)
	return string(runes[:previewLength]) + "..."
}
