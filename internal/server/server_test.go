package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/detector"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/notify"
	"github.com/songzhibin97/tokenlens/internal/observability"
	"github.com/songzhibin97/tokenlens/internal/orchestrator"
	"github.com/songzhibin97/tokenlens/internal/trigger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type call struct {
	token  string
	source models.TriggerSource
}

// fakeAnalyzer persists a canned record for every run.
type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     []call
	configErr error
	store     *storage.HistoryStore
	hub       *notify.Hub
}

func (f *fakeAnalyzer) CheckConfiguration() error { return f.configErr }

func (f *fakeAnalyzer) Analyze(ctx context.Context, raw string, source models.TriggerSource) (*models.AnalysisRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{token: raw, source: source})
	f.mu.Unlock()

	if f.configErr != nil {
		f.hub.Notify(notify.SetupError())
		return nil, f.configErr
	}

	rec := &models.AnalysisRecord{
		ID:        "rec-" + raw,
		Token:     raw,
		Analysis:  "Looks **fine**.",
		Kind:      models.Classify(raw).Kind,
		Source:    source,
		Timestamp: time.Now(),
		Preview:   "Looks fine.",
	}
	_ = f.store.SaveLatest(ctx, rec)
	_ = f.store.AppendHistory(ctx, rec)
	f.hub.Refresh()
	return rec, nil
}

func (f *fakeAnalyzer) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fixture struct {
	server   *Server
	analyzer *fakeAnalyzer
	store    *storage.HistoryStore
	hub      *notify.Hub
	registry *detector.Registry
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	store := storage.NewHistoryStore(storage.NewMemoryKV(), storage.HistoryOptions{}, discardLogger, metrics)
	hub := notify.NewHub(discardLogger, metrics)
	t.Cleanup(hub.Close)
	registry := detector.NewRegistry(discardLogger)
	analyzer := &fakeAnalyzer{store: store, hub: hub}

	srv := New(Deps{
		Analyzer:   analyzer,
		Storage:    store,
		Detections: registry,
		Hub:        hub,
		Gatherer:   reg,
		Logger:     discardLogger,
	})

	return &fixture{server: srv, analyzer: analyzer, store: store, hub: hub, registry: registry, metrics: metrics}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCall   *call
	}{
		{
			name:       "marked ticker",
			body:       `{"query": "$BNB", "source": "selection"}`,
			wantStatus: http.StatusAccepted,
			wantCall:   &call{token: "$BNB", source: models.SourceSelection},
		},
		{
			name:       "unknown source falls back to manual",
			body:       `{"query": "eth", "source": "keyboard"}`,
			wantStatus: http.StatusAccepted,
			wantCall:   &call{token: "eth", source: models.SourceManual},
		},
		{
			name:       "blank query",
			body:       `{"query": "   "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/api/analyze", tt.body)
			f.server.Wait()

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCall == nil {
				assert.Empty(t, f.analyzer.Calls())
				return
			}
			require.Len(t, f.analyzer.Calls(), 1)
			assert.Equal(t, *tt.wantCall, f.analyzer.Calls()[0])
		})
	}
}

func TestAnalyze_ConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.analyzer.configErr = orchestrator.ErrConfiguration

	events, unsubscribe := f.hub.Subscribe()
	defer unsubscribe()

	w := f.do(t, http.MethodPost, "/api/analyze", `{"query": "$BNB"}`)
	f.server.Wait()

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Notification)
		assert.Equal(t, notify.StageSetupError, ev.Notification.Stage)
	case <-time.After(time.Second):
		t.Fatal("setup error notification not published")
	}

	_, err := f.store.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMenuClick(t *testing.T) {
	tests := []struct {
		name        string
		detected    string
		body        string
		wantStatus  int
		wantOutcome trigger.Outcome
	}{
		{
			name:        "marked selection",
			body:        `{"menuItemId": "analyzeCryptoSelection", "selectionText": "$SOL", "tabId": "1"}`,
			wantStatus:  http.StatusAccepted,
			wantOutcome: trigger.Outcome{Token: "$SOL", Source: models.SourceSelection},
		},
		{
			name:        "unmarked selection needs input",
			body:        `{"menuItemId": "analyzeCryptoSelection", "selectionText": "hello world", "tabId": "1"}`,
			wantStatus:  http.StatusOK,
			wantOutcome: trigger.Outcome{NeedsInput: true, Message: trigger.PromptInvalidSelection},
		},
		{
			name:        "direct uses cursor detection",
			detected:    "Buy $PEPE now",
			body:        `{"menuItemId": "analyzeCryptoDirect", "tabId": "7"}`,
			wantStatus:  http.StatusAccepted,
			wantOutcome: trigger.Outcome{Token: "$PEPE", Source: models.SourceCursor},
		},
		{
			name:        "direct without detection needs input",
			body:        `{"menuItemId": "analyzeCryptoDirect", "tabId": "7"}`,
			wantStatus:  http.StatusOK,
			wantOutcome: trigger.Outcome{NeedsInput: true, Message: trigger.PromptNeedsInput},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.detected != "" {
				f.registry.Observe("7", detector.ContextEvent{ElementText: tt.detected, CaretOffset: -1})
			}

			w := f.do(t, http.MethodPost, "/api/menu-click", tt.body)
			f.server.Wait()
			require.Equal(t, tt.wantStatus, w.Code)

			var got trigger.Outcome
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantOutcome, got)

			if tt.wantOutcome.Ready() {
				require.Len(t, f.analyzer.Calls(), 1)
				assert.Equal(t, tt.wantOutcome.Token, f.analyzer.Calls()[0].token)
			} else {
				assert.Empty(t, f.analyzer.Calls())
			}
		})
	}
}

func TestMenuClick_UnknownItem(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/menu-click", `{"menuItemId": "openSettings"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetections(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/detections",
		`{"tabId": "3", "selection": "", "nodeText": "price of $eth today", "caretOffset": 10, "elementText": ""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ticker": "$ETH"}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/detections/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ticker": "$ETH"}`, w.Body.String())

	w = f.do(t, http.MethodDelete, "/api/detections/3", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/detections/3", "")
	assert.JSONEq(t, `{"ticker": null}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/detections", `{"nodeText": "$eth"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetections_MissingCaretOffset(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/detections",
		`{"tabId": "4", "nodeText": "$BTC at the start of a long line", "elementText": "only $ADA here"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ticker": "$ADA"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/detections",
		`{"tabId": "4", "nodeText": "$BTC at the start of a long line", "caretOffset": 0, "elementText": "only $ADA here"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ticker": "$BTC"}`, w.Body.String())
}

func TestLatestAndHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/popup/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "empty-state")

	w = f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, http.MethodGet, "/popup/loading", "")
	assert.Contains(t, w.Body.String(), "TokenLens is analyzing")

	_, err := f.analyzer.Analyze(context.Background(), "$BNB", models.SourceManual)
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/api/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var latest models.AnalysisRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &latest))
	assert.Equal(t, "rec-$BNB", latest.ID)

	w = f.do(t, http.MethodGet, "/popup/latest", "")
	assert.Contains(t, w.Body.String(), "Latest • just now")
	assert.Contains(t, w.Body.String(), "<strong>fine</strong>")

	w = f.do(t, http.MethodGet, "/popup/history", "")
	assert.Contains(t, w.Body.String(), "1 Analyses")
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	w = f.do(t, http.MethodGet, "/popup/history/rec-$BNB", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "From History • just now")

	w = f.do(t, http.MethodGet, "/popup/history/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/api/history", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/history", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.metrics.RecordRun("token", "succeeded", 0.5)

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tokenlens_pipeline_runs_total{kind="token",outcome="succeeded"} 1`)
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f.hub.Notify(notify.Started("id-1", "$BNB", models.KindToken, models.SourceSelection))
	f.hub.Refresh()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first notify.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, notify.EventNotification, first.Type)
	require.NotNil(t, first.Notification)
	assert.Equal(t, "id-1", first.Notification.ID)
	assert.Equal(t, notify.StageStarted, first.Notification.Stage)

	var second notify.Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, notify.EventRefresh, second.Type)
}
