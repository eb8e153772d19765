package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/tokenlens/internal/data/collector"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/utils/request"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader   = "x-cg-demo-api-key"
)

type CoinGeckoDataSource struct {
	baseURL    string
	apiKey     string
	httpClient *resty.Client
}

func NewCoinGeckoDataSource(baseURL, apiKey string) *CoinGeckoDataSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CoinGeckoDataSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: request.Request,
	}
}

// WithClient swaps the HTTP client, mainly for tests and custom timeouts.
func (c *CoinGeckoDataSource) WithClient(client *resty.Client) *CoinGeckoDataSource {
	c.httpClient = client
	return c
}

func (c *CoinGeckoDataSource) Name() string {
	return "coingecko"
}

// Search queries the fuzzy search endpoint and returns coins in provider order.
func (c *CoinGeckoDataSource) Search(ctx context.Context, query string) ([]collector.SearchCoin, error) {
	var result struct {
		Coins []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"coins"`
	}

	if err := c.get(ctx, "/search", map[string]string{"query": query}, &result); err != nil {
		return nil, err
	}

	coins := make([]collector.SearchCoin, 0, len(result.Coins))
	for _, coin := range result.Coins {
		coins = append(coins, collector.SearchCoin{ID: coin.ID, Symbol: coin.Symbol, Name: coin.Name})
	}
	return coins, nil
}

// Quote implements collector.PriceSource using the simple price endpoint.
func (c *CoinGeckoDataSource) Quote(ctx context.Context, res models.Resolution) (*collector.PriceQuote, error) {
	params := map[string]string{
		"ids":                     res.ID,
		"vs_currencies":           "usd",
		"include_market_cap":      "true",
		"include_24hr_vol":        "true",
		"include_24hr_change":     "true",
		"include_last_updated_at": "true",
	}

	var result map[string]struct {
		USD          *float64 `json:"usd"`
		USDMarketCap *float64 `json:"usd_market_cap"`
		USD24hVol    *float64 `json:"usd_24h_vol"`
		USD24hChange *float64 `json:"usd_24h_change"`
	}

	if err := c.get(ctx, "/simple/price", params, &result); err != nil {
		return nil, err
	}

	price, ok := result[res.ID]
	if !ok {
		return nil, fmt.Errorf("%w for %s", collector.ErrNoPriceData, res.ID)
	}

	return &collector.PriceQuote{
		Price:     models.MetricFrom(price.USD),
		MarketCap: models.MetricFrom(price.USDMarketCap),
		Volume24h: models.MetricFrom(price.USD24hVol),
		Change24h: models.MetricFrom(price.USD24hChange),
	}, nil
}

// Detail looks up supply, display name and icon for id.
func (c *CoinGeckoDataSource) Detail(ctx context.Context, id string) (*collector.CoinDetail, error) {
	params := map[string]string{
		"localization":   "false",
		"market_data":    "true",
		"community_data": "false",
		"developer_data": "false",
		"sparkline":      "false",
	}

	var result struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Image  struct {
			Thumb string `json:"thumb"`
			Small string `json:"small"`
		} `json:"image"`
		MarketData struct {
			CirculatingSupply *float64 `json:"circulating_supply"`
			TotalSupply       *float64 `json:"total_supply"`
		} `json:"market_data"`
	}

	if err := c.get(ctx, "/coins/"+url.PathEscape(id), params, &result); err != nil {
		return nil, err
	}

	icon := result.Image.Small
	if icon == "" {
		icon = result.Image.Thumb
	}

	return &collector.CoinDetail{
		ID:                result.ID,
		Symbol:            result.Symbol,
		Name:              result.Name,
		Icon:              icon,
		CirculatingSupply: models.MetricFrom(result.MarketData.CirculatingSupply),
		TotalSupply:       models.MetricFrom(result.MarketData.TotalSupply),
	}, nil
}

func (c *CoinGeckoDataSource) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	req := c.httpClient.R().SetContext(ctx).SetQueryParams(params)
	if c.apiKey != "" {
		req.SetHeader(apiKeyHeader, c.apiKey)
	}

	resp, err := req.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

var (
	_ collector.CoinSource  = (*CoinGeckoDataSource)(nil)
	_ collector.PriceSource = (*CoinGeckoDataSource)(nil)
)
