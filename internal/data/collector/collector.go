package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/songzhibin97/tokenlens/internal/analytics"
	"github.com/songzhibin97/tokenlens/internal/data"
	"github.com/songzhibin97/tokenlens/internal/models"
)

var (
	// ErrResolution is returned when no canonical id could be found, whether
	// the provider was unreachable or simply had no such token.
	ErrResolution = errors.New("token not resolved")

	// ErrFetch is returned when market data could not be retrieved.
	ErrFetch = errors.New("market data unavailable")

	// ErrNoPriceData is returned by price sources whose payload lacks the token.
	ErrNoPriceData = errors.New("no price data")
)

// DefaultFallbackIDs are probed one by one when search yields nothing usable.
var DefaultFallbackIDs = []string{"bitcoin", "ethereum", "binancecoin", "cardano", "solana", "ripple", "polkadot"}

type Logger interface {
	Error(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
}

// SearchCoin is one fuzzy search candidate.
type SearchCoin struct {
	ID     string
	Symbol string
	Name   string
}

// CoinDetail holds the slow-moving fields of a token.
type CoinDetail struct {
	ID                string
	Symbol            string
	Name              string
	Icon              string
	CirculatingSupply models.Metric
	TotalSupply       models.Metric
}

// PriceQuote is a market summary from one price source.
type PriceQuote struct {
	Price     models.Metric
	MarketCap models.Metric
	Volume24h models.Metric
	Change24h models.Metric
}

// CoinSource searches tokens and looks up their details.
type CoinSource interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchCoin, error)
	Detail(ctx context.Context, id string) (*CoinDetail, error)
}

// PriceSource provides a market summary for a resolved token.
type PriceSource interface {
	Name() string
	Quote(ctx context.Context, res models.Resolution) (*PriceQuote, error)
}

// Resolver implements data.TokenResolver with first-match search and a fixed fallback list.
type Resolver struct {
	source      CoinSource
	fallbackIDs []string
	logger      Logger
}

func NewResolver(source CoinSource, fallbackIDs []string, logger Logger) *Resolver {
	if len(fallbackIDs) == 0 {
		fallbackIDs = DefaultFallbackIDs
	}
	return &Resolver{
		source:      source,
		fallbackIDs: fallbackIDs,
		logger:      logger,
	}
}

// Resolve implements data.TokenResolver. The first candidate, in provider order,
// whose id, symbol or name contains the input wins.
func (r *Resolver) Resolve(ctx context.Context, query string) (*models.Resolution, error) {
	clean := strings.ToLower(models.StripMarker(query))
	if clean == "" {
		return nil, fmt.Errorf("%w: empty query", ErrResolution)
	}

	coins, err := r.source.Search(ctx, clean)
	if err != nil {
		r.logger.Error("token search failed", "source", r.source.Name(), "query", clean, "error", err)
	}

	for _, coin := range coins {
		if containsFold(coin.ID, clean) || containsFold(coin.Symbol, clean) || containsFold(coin.Name, clean) {
			r.logger.Info("resolved token", "query", clean, "id", coin.ID, "name", coin.Name)
			return &models.Resolution{ID: coin.ID, Symbol: strings.ToUpper(coin.Symbol), Name: coin.Name}, nil
		}
	}

	for _, id := range r.fallbackIDs {
		detail, err := r.source.Detail(ctx, id)
		if err != nil {
			r.logger.Error("fallback probe failed", "source", r.source.Name(), "id", id, "error", err)
			continue
		}
		if strings.EqualFold(detail.Symbol, clean) || containsFold(detail.Name, clean) {
			r.logger.Info("resolved token via fallback", "query", clean, "id", id, "name", detail.Name)
			return &models.Resolution{ID: id, Symbol: strings.ToUpper(detail.Symbol), Name: detail.Name}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrResolution, clean)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}

// Fetcher implements data.MarketDataFetcher over a detail source, an ordered list
// of price sources and a holder analytics estimator.
type Fetcher struct {
	details   CoinSource
	prices    []PriceSource
	estimator analytics.Estimator
	logger    Logger
	now       func() time.Time
}

func NewFetcher(details CoinSource, prices []PriceSource, estimator analytics.Estimator, logger Logger) *Fetcher {
	return &Fetcher{
		details:   details,
		prices:    prices,
		estimator: estimator,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch implements data.MarketDataFetcher. The price summary is required; the
// detail lookup only degrades the snapshot when it fails.
func (f *Fetcher) Fetch(ctx context.Context, res models.Resolution) (*models.MarketSnapshot, error) {
	quote, source, err := f.quote(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrFetch, res.ID, err)
	}

	detail, err := f.details.Detail(ctx, res.ID)
	if err != nil {
		f.logger.Error("detail lookup failed, continuing without it", "source", f.details.Name(), "id", res.ID, "error", err)
		detail = &CoinDetail{}
	}

	name := detail.Name
	if name == "" {
		name = res.Symbol
	}

	estimate := f.estimator.Estimate(ctx, res)

	return &models.MarketSnapshot{
		CanonicalID:       res.ID,
		Symbol:            res.Symbol,
		Name:              name,
		Icon:              detail.Icon,
		Price:             quote.Price,
		MarketCap:         quote.MarketCap,
		Volume24h:         quote.Volume24h,
		PriceChange24h:    quote.Change24h,
		CirculatingSupply: detail.CirculatingSupply,
		TotalSupply:       detail.TotalSupply,
		Liquidity:         models.EstimateLiquidity(quote.Volume24h),
		TopHoldersPct:     models.MetricOf(float64(estimate.TopHoldersPct)),
		WhaleActivity:     estimate.WhaleActivity,
		Source:            source,
		FetchedAt:         f.now(),
	}, nil
}

// quote asks each price source once, in order, and keeps the first answer.
func (f *Fetcher) quote(ctx context.Context, res models.Resolution) (*PriceQuote, string, error) {
	if len(f.prices) == 0 {
		return nil, "", errors.New("no price sources configured")
	}

	var lastErr error
	for _, source := range f.prices {
		quote, err := source.Quote(ctx, res)
		if err == nil && quote != nil {
			f.logger.Info("collected market data", "source", source.Name(), "id", res.ID)
			return quote, source.Name(), nil
		}
		if err == nil {
			err = ErrNoPriceData
		}
		f.logger.Error("failed to collect market data", "source", source.Name(), "id", res.ID, "error", err)
		lastErr = err
	}

	return nil, "", lastErr
}

var (
	_ data.TokenResolver     = (*Resolver)(nil)
	_ data.MarketDataFetcher = (*Fetcher)(nil)
)
