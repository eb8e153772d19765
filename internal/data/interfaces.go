package data

import (
	"context"
	"time"

	"github.com/songzhibin97/tokenlens/internal/models"
)

// TokenResolver 将自由格式的代币符号映射到数据源ID
type TokenResolver interface {
	// Resolve maps a symbol (optionally marked) to a canonical identifier.
	Resolve(ctx context.Context, query string) (*models.Resolution, error)
}

// MarketDataFetcher 获取代币市场数据
type MarketDataFetcher interface {
	// Fetch retrieves a market snapshot for a resolved token.
	Fetch(ctx context.Context, res models.Resolution) (*models.MarketSnapshot, error)
}

// AnalysisStorage 处理分析结果的持久化
type AnalysisStorage interface {
	// SaveLatest replaces the latest analysis.
	SaveLatest(ctx context.Context, rec *models.AnalysisRecord) error

	// AppendHistory prepends a record to the capped history log.
	AppendHistory(ctx context.Context, rec *models.AnalysisRecord) error

	// LatestForDisplay returns the latest analysis if it is still display-eligible at now.
	LatestForDisplay(ctx context.Context, now time.Time) (*models.AnalysisRecord, error)

	// History returns the log, most recent first.
	History(ctx context.Context) ([]models.AnalysisRecord, error)

	// HistoryRecord finds one history entry by id.
	HistoryRecord(ctx context.Context, id string) (*models.AnalysisRecord, error)

	// ClearHistory removes the whole log.
	ClearHistory(ctx context.Context) error
}
