package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"

	"github.com/songzhibin97/tokenlens/internal/data/collector"
	"github.com/songzhibin97/tokenlens/internal/models"
)

const defaultQuoteAsset = "USDT"

// BinanceDataSource quotes tokens from the public 24h ticker of <SYMBOL><quote> pairs.
// Binance has no market cap figure, so that field is always unavailable.
type BinanceDataSource struct {
	client     *binance.Client
	quoteAsset string
}

func NewBinanceDataSource(quoteAsset string) *BinanceDataSource {
	if quoteAsset == "" {
		quoteAsset = defaultQuoteAsset
	}
	// public market endpoints need no credentials
	return &BinanceDataSource{
		client:     binance.NewClient("", ""),
		quoteAsset: strings.ToUpper(quoteAsset),
	}
}

func (b *BinanceDataSource) Name() string {
	return "binance"
}

// Quote implements collector.PriceSource.
func (b *BinanceDataSource) Quote(ctx context.Context, res models.Resolution) (*collector.PriceQuote, error) {
	if res.Symbol == "" {
		return nil, fmt.Errorf("binance: symbol required for %s", res.ID)
	}
	pair := strings.ToUpper(res.Symbol) + b.quoteAsset

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get 24h ticker for %s: %w", pair, err)
	}

	if len(stats) == 0 || stats[0] == nil {
		return nil, fmt.Errorf("%w for %s", collector.ErrNoPriceData, pair)
	}
	ticker := stats[0]

	return &collector.PriceQuote{
		Price:     models.ParseMetric(ticker.LastPrice),
		MarketCap: models.Unavailable(),
		Volume24h: models.ParseMetric(ticker.QuoteVolume),
		Change24h: models.ParseMetric(ticker.PriceChangePercent),
	}, nil
}

var _ collector.PriceSource = (*BinanceDataSource)(nil)
