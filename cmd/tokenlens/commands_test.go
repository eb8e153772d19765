package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/tokenlens/internal/configs"
	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/orchestrator"
)

func writeConfig(t *testing.T, dsn string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"storage": {"driver": "sqlite", "dsn": "` + dsn + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("TOKENLENS_API_KEY", "")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--style", "notty", "--env-file", filepath.Join(t.TempDir(), "missing.env")}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func seed(t *testing.T, dsn string, recs ...*models.AnalysisRecord) {
	t.Helper()
	kv, err := storage.NewSQLiteKV(dsn)
	require.NoError(t, err)
	defer kv.Close()

	store := storage.NewHistoryStore(kv, storage.HistoryOptions{}, nil, nil)
	for _, rec := range recs {
		require.NoError(t, store.SaveLatest(context.Background(), rec))
		require.NoError(t, store.AppendHistory(context.Background(), rec))
	}
}

func TestHistoryCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tokenlens.db")
	conf := writeConfig(t, dsn)

	out, err := run(t, "--conf", conf, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses yet")

	seed(t, dsn, &models.AnalysisRecord{
		ID:        "rec-1",
		Token:     "$BNB",
		Analysis:  "Solid **liquidity**.",
		Kind:      models.KindToken,
		Source:    models.SourceManual,
		Timestamp: time.Now(),
		Preview:   "Solid liquidity.",
	})

	out, err = run(t, "--conf", conf, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "1 Analyses")
	assert.Contains(t, out, "$BNB")

	out, err = run(t, "--conf", conf, "history", "rec-1")
	require.NoError(t, err)
	assert.Contains(t, out, "liquidity")
	assert.Contains(t, out, "From History")

	_, err = run(t, "--conf", conf, "history", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	out, err = run(t, "--conf", conf, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "History cleared.")

	out, err = run(t, "--conf", conf, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses yet")
}

func TestLatestCmd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tokenlens.db")
	conf := writeConfig(t, dsn)

	out, err := run(t, "--conf", conf, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "No recent analysis")

	seed(t, dsn, &models.AnalysisRecord{
		ID:        "rec-2",
		Token:     "0x2170ed0880ac9a755fd29b2688956bd959f933f8",
		Analysis:  "Unverified contract.",
		Kind:      models.KindContract,
		Source:    models.SourceSelection,
		Timestamp: time.Now(),
	})

	out, err = run(t, "--conf", conf, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Unverified contract.")
}

func TestAnalyzeCmd_RequiresAPIKey(t *testing.T) {
	conf := writeConfig(t, filepath.Join(t.TempDir(), "tokenlens.db"))

	out, err := run(t, "--conf", conf, "analyze", "$BNB")
	assert.ErrorIs(t, err, orchestrator.ErrConfiguration)
	assert.NotContains(t, out, "Analysis complete")
}

func TestClickCmd_UnknownMenuItem(t *testing.T) {
	conf := writeConfig(t, filepath.Join(t.TempDir(), "tokenlens.db"))

	_, err := run(t, "--conf", conf, "click", "--menu-item", "openSettings")
	assert.Error(t, err)
}

func TestRootCmd_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ai_config": {"provider": "bard"}}`), 0o600))

	_, err := run(t, "--conf", path, "history")
	assert.Error(t, err)
}

func TestApp_ReloadThresholds(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	dir := t.TempDir()
	conf := filepath.Join(dir, "config.json")
	missingEnv := filepath.Join(dir, "missing.env")
	write := func(content string) {
		require.NoError(t, os.WriteFile(conf, []byte(content), 0o600))
	}

	write(`{"storage": {"driver": "memory"}}`)
	config, err := configs.Load(conf, missingEnv)
	require.NoError(t, err)

	app, err := NewApp(config, newLogger(io.Discard, false))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	snap := &models.MarketSnapshot{
		Price:     models.MetricOf(1),
		Liquidity: models.MetricOf(5_000),
	}

	before, err := app.assessor.Assess(ctx, snap)
	require.NoError(t, err)
	require.Len(t, before.RiskFactors, 1)
	assert.Contains(t, before.RiskFactors[0], "Thin liquidity")

	write(`{"storage": {"driver": "memory"}, "risk_parameters": {"min_liquidity": 1000, "max_holders_pct": 40, "max_abs_change_24h": 15}}`)
	require.NoError(t, app.ReloadThresholds(ctx, conf, missingEnv))

	after, err := app.assessor.Assess(ctx, snap)
	require.NoError(t, err)
	assert.Empty(t, after.RiskFactors)
	assert.Equal(t, "LOW", after.Severity)

	// rejected thresholds leave the current ones in place
	write(`{"storage": {"driver": "memory"}, "risk_parameters": {"min_liquidity": -1, "max_holders_pct": 40, "max_abs_change_24h": 15}}`)
	assert.Error(t, app.ReloadThresholds(ctx, conf, missingEnv))

	again, err := app.assessor.Assess(ctx, snap)
	require.NoError(t, err)
	assert.Empty(t, again.RiskFactors)
}
