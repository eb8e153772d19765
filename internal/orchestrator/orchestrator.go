// Package orchestrator runs the analysis pipeline: classify, announce, gather,
// compose, complete, persist and notify. Every run that passes the credential
// check ends in exactly one persisted record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/tokenlens/internal/ai"
	"github.com/songzhibin97/tokenlens/internal/data"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/notify"
	"github.com/songzhibin97/tokenlens/internal/observability"
	"github.com/songzhibin97/tokenlens/internal/risk"
)

// ErrConfiguration is returned before any work starts when the completion
// credential is missing or still a placeholder.
var ErrConfiguration = errors.New("configuration error: completion API key not configured")

// ContractNotice stands in for market data on contract address queries.
const ContractNotice = "Contract analysis uses the address only; holder counts, recent transactions and scam databases are not queried."

const (
	DefaultPersona        = "As TokenLens (pro-crypto, blunt, risk-focused AI)"
	DefaultSuccessDismiss = 3 * time.Second
	DefaultFailureDismiss = 5 * time.Second
)

// Config 编排器配置
type Config struct {
	APIKey         string
	Persona        string
	SuccessDismiss time.Duration
	FailureDismiss time.Duration
}

// Deps are the collaborators of one Analyzer. Assessor and Metrics are optional.
type Deps struct {
	Resolver  data.TokenResolver
	Fetcher   data.MarketDataFetcher
	Completer ai.Completer
	Storage   data.AnalysisStorage
	Notifier  notify.Notifier
	Assessor  risk.Assessor
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

type Analyzer struct {
	deps  Deps
	cfg   Config
	now   func() time.Time
	newID func() string
}

func NewAnalyzer(deps Deps, cfg Config) *Analyzer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.SuccessDismiss <= 0 {
		cfg.SuccessDismiss = DefaultSuccessDismiss
	}
	if cfg.FailureDismiss <= 0 {
		cfg.FailureDismiss = DefaultFailureDismiss
	}
	return &Analyzer{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// IsPlaceholderKey reports whether key is empty or an unfilled template value.
func IsPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	return key == "" || strings.Contains(strings.ToUpper(key), "YOUR_")
}

// CheckConfiguration validates the credential without starting a run.
func (a *Analyzer) CheckConfiguration() error {
	if IsPlaceholderKey(a.cfg.APIKey) {
		return ErrConfiguration
	}
	return nil
}

// gathered is the outcome of the gather step.
type gathered struct {
	snapshot *models.MarketSnapshot
	note     string
	flags    []string
	severity string
	score    float64
}

// Analyze runs one pipeline for raw. Only ErrConfiguration is returned as an
// error; every other failure is folded into the returned record.
func (a *Analyzer) Analyze(ctx context.Context, raw string, source models.TriggerSource) (*models.AnalysisRecord, error) {
	if err := a.CheckConfiguration(); err != nil {
		a.deps.Logger.Error("completion API key not set", "err", err)
		a.deps.Notifier.Notify(notify.SetupError())
		return nil, err
	}

	start := a.now()
	if !source.Valid() {
		source = models.SourceManual
	}

	query := models.Classify(raw)
	id := a.newID()
	logger := a.deps.Logger.With("id", id, "token", query.Raw, "type", query.Kind, "source", source)
	logger.Info("analysis triggered")

	a.deps.Notifier.ShowLoading()
	a.deps.Notifier.Notify(notify.Started(id, query.Raw, query.Kind, source))

	g := a.gather(ctx, query, logger)

	prompt := a.compose(query, g)
	a.deps.Notifier.Notify(notify.Thinking(id, query.Raw, query.Kind))

	analysis, err := a.deps.Completer.Complete(ctx, prompt)
	if err != nil {
		logger.Error("completion failed", "err", err)
		a.deps.Metrics.RecordStageFailure("complete")
		analysis = fmt.Sprintf("Analysis could not be completed: %v", err)
	}

	rec := &models.AnalysisRecord{
		ID:           id,
		Token:        query.Raw,
		Analysis:     analysis,
		Snapshot:     g.snapshot,
		DataError:    g.note,
		RiskFlags:    g.flags,
		RiskSeverity: g.severity,
		RiskScore:    g.score,
		Kind:         query.Kind,
		Source:       source,
		Timestamp:    a.now(),
		Preview:      models.Preview(analysis),
	}

	a.persist(ctx, rec, logger)
	a.deps.Notifier.Refresh()

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		a.deps.Notifier.Notify(notify.Failed(id, query.Kind, err))
		a.deps.Notifier.Dismiss(id, a.cfg.FailureDismiss)
	} else {
		a.deps.Notifier.Notify(notify.Succeeded(id, query.Kind))
		a.deps.Notifier.Dismiss(id, a.cfg.SuccessDismiss)
	}

	a.deps.Metrics.RecordRun(string(query.Kind), outcome, a.now().Sub(start).Seconds())
	logger.Info("analysis finished", "outcome", outcome)

	return rec, nil
}

func (a *Analyzer) gather(ctx context.Context, query models.TokenQuery, logger *slog.Logger) gathered {
	if query.Kind == models.KindContract {
		return gathered{note: ContractNotice}
	}

	res, err := a.deps.Resolver.Resolve(ctx, query.Symbol)
	if err != nil {
		logger.Info("token not resolved", "err", err)
		a.deps.Metrics.RecordStageFailure("resolve")
		return gathered{note: fmt.Sprintf("No market data found for %s. Try major tokens (BTC, ETH, BNB) or a token with more liquidity.", query.Symbol)}
	}

	snap, err := a.deps.Fetcher.Fetch(ctx, *res)
	if err != nil {
		logger.Error("market data fetch failed", "coin", res.ID, "err", err)
		a.deps.Metrics.RecordStageFailure("fetch")
		return gathered{note: fmt.Sprintf("Could not fetch market data for %s: %v", query.Symbol, err)}
	}

	g := gathered{snapshot: snap}
	if a.deps.Assessor != nil {
		assessment, err := a.deps.Assessor.Assess(ctx, snap)
		if err != nil {
			logger.Error("risk assessment failed", "err", err)
		} else {
			g.flags = assessment.RiskFactors
			g.severity = assessment.Severity
			g.score = assessment.RiskLevel
		}
	}
	return g
}

func (a *Analyzer) compose(query models.TokenQuery, g gathered) string {
	if query.Kind == models.KindContract {
		return fmt.Sprintf("%s: Analyze this smart contract address %s. Context: %s "+
			"What are the potential risks (honeypot, rug pull indicators) and opportunities (legit DeFi protocol, NFT collection)? "+
			"Check for known scams, holder distribution patterns, and recent activity. Keep it short and actionable.",
			a.cfg.Persona, query.Raw, g.note)
	}

	summary := g.note
	if g.snapshot != nil {
		summary = MarketSummary(g.snapshot)
		if g.severity != "" {
			summary += fmt.Sprintf(" | Risk: %s (%.2f)", g.severity, g.score)
		}
		if len(g.flags) > 0 {
			summary += " | Risk Flags: " + strings.Join(g.flags, "; ")
		}
	}

	return fmt.Sprintf("%s: Analyze the $%s token using this on-chain data: %s. "+
		"What are the main risks and opportunities? Keep it short and actionable.",
		a.cfg.Persona, query.Symbol, summary)
}

// MarketSummary is the one-line market digest embedded in prompts.
func MarketSummary(s *models.MarketSnapshot) string {
	return fmt.Sprintf("Price: %s | Market Cap: %s | 24h Vol: %s | Top Holders: %s | Whale Activity: %s | Name: %s",
		s.PriceText(), s.MarketCapText(), s.VolumeText(), s.HoldersText(), s.WhaleText(), s.Name)
}

// persist writes latest then history. There is no transaction across the two
// keys; failures are logged and the run continues.
func (a *Analyzer) persist(ctx context.Context, rec *models.AnalysisRecord, logger *slog.Logger) {
	if err := a.deps.Storage.SaveLatest(ctx, rec); err != nil {
		logger.Error("failed to save latest analysis", "err", err)
	}
	if err := a.deps.Storage.AppendHistory(ctx, rec); err != nil {
		logger.Error("failed to append history", "err", err)
	}
}
