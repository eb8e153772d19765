package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/songzhibin97/tokenlens/internal/ai"
	"github.com/songzhibin97/tokenlens/internal/ai/deepseek"
	"github.com/songzhibin97/tokenlens/internal/ai/openai"
	"github.com/songzhibin97/tokenlens/internal/analytics"
	"github.com/songzhibin97/tokenlens/internal/configs"
	"github.com/songzhibin97/tokenlens/internal/data/collector"
	"github.com/songzhibin97/tokenlens/internal/data/collector/binance"
	"github.com/songzhibin97/tokenlens/internal/data/collector/coingecko"
	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/detector"
	"github.com/songzhibin97/tokenlens/internal/notify"
	"github.com/songzhibin97/tokenlens/internal/observability"
	"github.com/songzhibin97/tokenlens/internal/orchestrator"
	"github.com/songzhibin97/tokenlens/internal/risk"
	"github.com/songzhibin97/tokenlens/internal/utils/request"
)

// App 组装好的运行时组件
type App struct {
	config     *configs.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	kv         storage.KV
	store      *storage.HistoryStore
	hub        *notify.Hub
	detections *detector.Registry
	assessor   *risk.BasicAssessor
	analyzer   *orchestrator.Analyzer
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// NewApp wires every component from config.
func NewApp(config *configs.Config, logger *slog.Logger) (*App, error) {
	config.ApplyProxy()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	kv, err := storage.Open(config.Storage.Driver, config.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.NewHistoryStore(kv, config.HistoryOptions(), logger, metrics)

	hub := notify.NewHub(logger, metrics)

	// 行情数据源
	gecko := coingecko.NewCoinGeckoDataSource(config.MarketConfig.BaseURL, config.MarketConfig.APIKey).
		WithClient(request.New(config.MarketTimeout()))

	var prices []collector.PriceSource
	for _, name := range config.MarketConfig.Sources {
		switch name {
		case configs.SourceCoinGecko:
			prices = append(prices, gecko)
		case configs.SourceBinance:
			prices = append(prices, binance.NewBinanceDataSource(config.MarketConfig.QuoteAsset))
		}
	}

	resolver := collector.NewResolver(gecko, config.MarketConfig.FallbackIDs, logger)
	estimator := analytics.NewRandomEstimator(uint64(time.Now().UnixNano()))
	fetcher := collector.NewFetcher(gecko, prices, estimator, logger)
	assessor := risk.NewBasicAssessor(config.RiskParams)

	analyzer := orchestrator.NewAnalyzer(orchestrator.Deps{
		Resolver:  resolver,
		Fetcher:   fetcher,
		Completer: newCompleter(config),
		Storage:   store,
		Notifier:  hub,
		Assessor:  assessor,
		Metrics:   metrics,
		Logger:    logger,
	}, orchestrator.Config{
		APIKey:         config.AIConfig.APIKey,
		Persona:        config.AIConfig.Persona,
		SuccessDismiss: configs.ParseDuration(config.NotifyConfig.SuccessDismiss, orchestrator.DefaultSuccessDismiss),
		FailureDismiss: configs.ParseDuration(config.NotifyConfig.FailureDismiss, orchestrator.DefaultFailureDismiss),
	})

	return &App{
		config:     config,
		logger:     logger,
		registry:   registry,
		metrics:    metrics,
		kv:         kv,
		store:      store,
		hub:        hub,
		detections: detector.NewRegistry(logger),
		assessor:   assessor,
		analyzer:   analyzer,
	}, nil
}

func newCompleter(config *configs.Config) ai.Completer {
	opts := config.CompletionOptions()
	if config.AIConfig.Provider == configs.ProviderDeepSeek {
		return deepseek.NewDeepSeekCompleter(config.AIConfig.APIKey, config.AIConfig.BaseURL, opts)
	}
	return openai.NewOpenAICompleter(config.AIConfig.APIKey, config.AIConfig.BaseURL, opts)
}

// ReloadThresholds re-reads the config and applies its risk thresholds. The
// current thresholds stay in place when the new ones are rejected.
func (a *App) ReloadThresholds(ctx context.Context, path string, envFiles ...string) error {
	config, err := configs.Load(path, envFiles...)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if err := a.assessor.SetThresholds(ctx, &config.RiskParams); err != nil {
		return err
	}
	a.logger.Info("risk thresholds reloaded",
		"min_liquidity", config.RiskParams.MinLiquidity,
		"max_holders_pct", config.RiskParams.MaxHoldersPct,
		"max_abs_change_24h", config.RiskParams.MaxAbsChange24h)
	return nil
}

// Sweep drops an expired latest result, as done once at startup.
func (a *App) Sweep(ctx context.Context) {
	if _, err := a.store.SweepLatest(ctx, time.Now()); err != nil {
		a.logger.Error("startup sweep failed", "err", err)
	}
}

// EchoNotifications prints notification events to w until the returned func is called.
func (a *App) EchoNotifications(w io.Writer) func() {
	events, unsubscribe := a.hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type != notify.EventNotification || ev.Notification == nil {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", ev.Notification.Title, ev.Notification.Message)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func (a *App) Close() {
	a.hub.Close()
	if err := a.kv.Close(); err != nil {
		a.logger.Error("close storage", "err", err)
	}
}

func stderrLogger(debug bool) *slog.Logger {
	return newLogger(os.Stderr, debug)
}
