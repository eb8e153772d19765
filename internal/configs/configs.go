package configs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/songzhibin97/tokenlens/internal/ai"
	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/risk"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"

	SourceCoinGecko = "coingecko"
	SourceBinance   = "binance"
)

type Config struct {
	// 基础配置
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // HTTP服务监听地址
	Debug      bool   `json:"debug" yaml:"debug"`
	Proxy      string `json:"proxy" yaml:"proxy"` // 出站代理

	Storage Storage `json:"storage" yaml:"storage"`

	// 风险提示阈值
	RiskParams risk.Thresholds `json:"risk_parameters" yaml:"risk_params"`

	// AI 模型参数
	AIConfig AIConfig `json:"ai_config" yaml:"ai_config"`

	// 行情数据源
	MarketConfig MarketConfig `json:"market_config" yaml:"market_config"`

	HistoryConfig HistoryConfig `json:"history_config" yaml:"history_config"`

	NotifyConfig NotifyConfig `json:"notify_config" yaml:"notify_config"`
}

type Storage struct {
	Driver string `json:"driver" yaml:"driver"` // memory/sqlite/postgres
	DSN    string `json:"dsn" yaml:"dsn"`       // 文件路径或数据库连接字符串
}

type AIConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`       // openai(兼容Groq)/deepseek
	APIKey      string  `json:"api_key" yaml:"api_key"`         // AI服务API密钥
	BaseURL     string  `json:"base_url" yaml:"base_url"`       // 兼容OpenAI协议的服务地址
	Model       string  `json:"model" yaml:"model"`             // 模型名称
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`   // 最大生成长度
	Temperature float32 `json:"temperature" yaml:"temperature"` // 采样温度
	Persona     string  `json:"persona" yaml:"persona"`         // 提示词前缀
}

type MarketConfig struct {
	BaseURL     string   `json:"base_url" yaml:"base_url"`
	APIKey      string   `json:"api_key" yaml:"api_key"`
	Sources     []string `json:"sources" yaml:"sources"` // 价格数据源，按顺序尝试
	FallbackIDs []string `json:"fallback_ids" yaml:"fallback_ids"`
	Timeout     string   `json:"timeout" yaml:"timeout"`
	QuoteAsset  string   `json:"quote_asset" yaml:"quote_asset"` // Binance计价资产
}

type HistoryConfig struct {
	MaxEntries    int    `json:"max_entries" yaml:"max_entries"` // 不超过50
	RetentionTTL  string `json:"retention_ttl" yaml:"retention_ttl"`
	SweepInterval string `json:"sweep_interval" yaml:"sweep_interval"`
}

type NotifyConfig struct {
	SuccessDismiss string `json:"success_dismiss" yaml:"success_dismiss"`
	FailureDismiss string `json:"failure_dismiss" yaml:"failure_dismiss"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:8787",
		Storage: Storage{
			Driver: storage.DriverSQLite,
			DSN:    "data/tokenlens.db",
		},
		RiskParams: risk.DefaultThresholds,
		AIConfig: AIConfig{
			// 模型为空时由具体实现选择默认值
			Provider:    ProviderOpenAI,
			MaxTokens:   ai.DefaultMaxTokens,
			Temperature: ai.DefaultTemperature,
		},
		MarketConfig: MarketConfig{
			Sources: []string{SourceCoinGecko},
			Timeout: "15s",
		},
		HistoryConfig: HistoryConfig{
			MaxEntries:    storage.DefaultMaxEntries,
			RetentionTTL:  storage.DefaultRetentionTTL.String(),
			SweepInterval: storage.DefaultSweepInterval.String(),
		},
		NotifyConfig: NotifyConfig{
			SuccessDismiss: "3s",
			FailureDismiss: "5s",
		},
	}
}

// Load reads the JSON file at path over the defaults, then applies .env files
// and environment overrides. An empty path skips the file.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		configFile, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(configFile, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// .env 文件可选
	_ = godotenv.Load(envFiles...)

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("GROQ_API_KEY"); val != "" {
		c.AIConfig.APIKey = val
	}
	if val := os.Getenv("TOKENLENS_API_KEY"); val != "" {
		c.AIConfig.APIKey = val
	}
	if val := os.Getenv("TOKENLENS_AI_PROVIDER"); val != "" {
		c.AIConfig.Provider = val
	}
	if val := os.Getenv("TOKENLENS_AI_BASE_URL"); val != "" {
		c.AIConfig.BaseURL = val
	}
	if val := os.Getenv("TOKENLENS_MODEL"); val != "" {
		c.AIConfig.Model = val
	}

	if val := os.Getenv("TOKENLENS_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("TOKENLENS_STORAGE_DRIVER"); val != "" {
		c.Storage.Driver = val
	}
	if val := os.Getenv("TOKENLENS_STORAGE_DSN"); val != "" {
		c.Storage.DSN = val
	}

	if val := os.Getenv("TOKENLENS_COINGECKO_API_KEY"); val != "" {
		c.MarketConfig.APIKey = val
	}
	if val := os.Getenv("TOKENLENS_MARKET_SOURCES"); val != "" {
		var sources []string
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		c.MarketConfig.Sources = sources
	}

	if val := os.Getenv("TOKENLENS_PROXY"); val != "" {
		c.Proxy = val
	}
	if val := os.Getenv("TOKENLENS_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
}

// Validate checks enumerated fields. A missing API key is not an error here:
// the orchestrator reports it as a setup error on first use.
func (c *Config) Validate() error {
	var errs []error

	switch c.AIConfig.Provider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		errs = append(errs, fmt.Errorf("unsupported ai provider %q", c.AIConfig.Provider))
	}

	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverSQLite, storage.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}

	if c.HistoryConfig.MaxEntries > models.HistoryCap {
		errs = append(errs, fmt.Errorf("history max_entries %d exceeds the cap of %d", c.HistoryConfig.MaxEntries, models.HistoryCap))
	}

	if len(c.MarketConfig.Sources) == 0 {
		errs = append(errs, errors.New("at least one market source is required"))
	}
	for _, s := range c.MarketConfig.Sources {
		if s != SourceCoinGecko && s != SourceBinance {
			errs = append(errs, fmt.Errorf("unsupported market source %q", s))
		}
	}

	return errors.Join(errs...)
}

// ApplyProxy exports the proxy for clients that read it from the environment.
func (c *Config) ApplyProxy() {
	if c.Proxy == "" {
		return
	}
	_ = os.Setenv("HTTP_PROXY", c.Proxy)
	_ = os.Setenv("HTTPS_PROXY", c.Proxy)
}

// CompletionOptions maps the AI section onto request options.
func (c *Config) CompletionOptions() ai.Options {
	return ai.Options{
		Model:       c.AIConfig.Model,
		MaxTokens:   c.AIConfig.MaxTokens,
		Temperature: c.AIConfig.Temperature,
	}
}

// HistoryOptions maps the history section onto store options.
func (c *Config) HistoryOptions() storage.HistoryOptions {
	return storage.HistoryOptions{
		MaxEntries:   c.HistoryConfig.MaxEntries,
		RetentionTTL: ParseDuration(c.HistoryConfig.RetentionTTL, storage.DefaultRetentionTTL),
	}
}

func (c *Config) SweepInterval() time.Duration {
	return ParseDuration(c.HistoryConfig.SweepInterval, storage.DefaultSweepInterval)
}

func (c *Config) MarketTimeout() time.Duration {
	return ParseDuration(c.MarketConfig.Timeout, 15*time.Second)
}

// ParseDuration parses s, falling back to def when s is empty, invalid or not positive.
func ParseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
