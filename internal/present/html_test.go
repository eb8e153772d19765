package present

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/tokenlens/internal/models"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tokenRecord() *models.AnalysisRecord {
	return &models.AnalysisRecord{
		ID:       "rec-1",
		Token:    "$BNB",
		Analysis: "**Risks**: exchange exposure\n* thin order books\n- regulatory heat\n\n1. Opportunity one\nplain line\nsecond line",
		Snapshot: &models.MarketSnapshot{
			CanonicalID:    "binancecoin",
			Symbol:         "BNB",
			Name:           "BNB",
			Icon:           "https://assets.example.com/bnb.png",
			Price:          models.MetricOf(600.12),
			MarketCap:      models.MetricOf(90000000000),
			Volume24h:      models.MetricOf(1500000000),
			PriceChange24h: models.MetricOf(-1.5),
			Liquidity:      models.MetricOf(150000000),
			TopHoldersPct:  models.MetricOf(35),
			WhaleActivity:  "Medium",
		},
		Kind:      models.KindToken,
		Source:    models.SourceCursor,
		Timestamp: now.Add(-5 * time.Minute),
		Preview:   "**Risks**: exchange exposure",
	}
}

func TestBody_Token(t *testing.T) {
	out := Body(tokenRecord())

	assert.Contains(t, out, `<img src="https://assets.example.com/bnb.png" class="token-icon" alt="$BNB icon">`)
	assert.Contains(t, out, `<div class="token-name">BNB</div>`)
	assert.Contains(t, out, `<strong>Price:</strong> 600.12`)
	assert.Contains(t, out, `<strong>Market Cap:</strong> 90,000,000,000`)
	assert.Contains(t, out, `<strong>Circ. Supply:</strong> N/A`)
	assert.Contains(t, out, `<span style="color: #EF4444;">-1.50%</span>`)
	assert.Contains(t, out, `<strong>Risks</strong>: exchange exposure`)
	assert.Contains(t, out, `<span class="bullet-text">thin order books</span>`)
	assert.Contains(t, out, `<span class="bullet-text">regulatory heat</span>`)
	assert.Contains(t, out, `<div class="numbered-item">1. <span class="numbered-text">Opportunity one</span></div>`)
	assert.Contains(t, out, `plain line<br>second line`)
	assert.Equal(t, 2, strings.Count(out, `<div class="paragraph">`))
	assert.NotContains(t, out, "warning")
}

func TestBody_Deterministic(t *testing.T) {
	rec := tokenRecord()
	assert.Equal(t, Body(rec), Body(rec))
}

func TestBody_PlaceholderIcon(t *testing.T) {
	tests := []struct {
		name string
		icon string
	}{
		{name: "no icon", icon: ""},
		{name: "non http icon", icon: "javascript:alert(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tokenRecord()
			rec.Snapshot.Icon = tt.icon

			out := Body(rec)
			assert.Contains(t, out, `<div class="token-icon-placeholder">?</div>`)
			assert.NotContains(t, out, "<img")
		})
	}
}

func TestBody_Contract(t *testing.T) {
	rec := &models.AnalysisRecord{
		Token:     "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
		Analysis:  "Looks like a proxy contract.",
		DataError: "Contract analysis is limited to the address itself.",
		Kind:      models.KindContract,
		Timestamp: now,
	}

	out := Body(rec)
	assert.Contains(t, out, "<strong>Contract Analysis</strong>")
	assert.Contains(t, out, `<span class="address">0xABCDEF0123456789ABCDEF0123456789ABCDEF01</span>`)
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "token-icon-placeholder")
	assert.NotContains(t, out, "stats-grid")
	assert.NotContains(t, out, "warning")
}

func TestBody_DataError(t *testing.T) {
	rec := &models.AnalysisRecord{
		Token:     "$ZZZ",
		Analysis:  "No data, generic take.",
		DataError: "No market data found for ZZZ. Try major tokens (BTC, ETH, BNB) or a token with more liquidity.",
		Kind:      models.KindToken,
		Timestamp: now,
	}

	out := Body(rec)
	assert.Contains(t, out, `<div class="warning">⚠️ No market data found for ZZZ.`)
	assert.NotContains(t, out, "stats-grid")
	assert.Contains(t, out, `<div class="token-icon-placeholder">?</div>`)
}

func TestBody_EscapesText(t *testing.T) {
	rec := tokenRecord()
	rec.Token = `<script>alert("x")</script>`
	rec.Analysis = `**<b>bold</b>** & <img src=x onerror=alert(1)>`
	rec.RiskFlags = []string{"<i>flag</i>"}

	out := Body(rec)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<img src=x")
	assert.NotContains(t, out, "<i>flag</i>")
	assert.Contains(t, out, "<strong>&lt;b&gt;bold&lt;/b&gt;</strong> &amp; &lt;img")
	assert.Contains(t, out, "&lt;i&gt;flag&lt;/i&gt;")
}

func TestBody_RiskSeverity(t *testing.T) {
	rec := tokenRecord()
	rec.RiskSeverity = "HIGH"
	rec.RiskScore = 0.55
	rec.RiskFlags = []string{"Sharp 24h move: 40.00%"}

	out := Body(rec)
	assert.Contains(t, out, `🚩 Risk: <span class="severity severity-high">HIGH</span> (0.55)`)
	assert.Contains(t, out, "Sharp 24h move: 40.00%")
	assert.NotContains(t, out, "🚩 Risk Flags")

	rec.RiskFlags = nil
	rec.RiskSeverity = "LOW"
	rec.RiskScore = 0
	assert.Contains(t, Body(rec), `severity-low">LOW</span> (0.00)`)

	rec.RiskSeverity = ""
	assert.NotContains(t, Body(rec), "risk-flags")
}

func TestRender_LatestVersusHistory(t *testing.T) {
	rec := tokenRecord()

	latest := Render(rec, OriginLatest, now)
	history := Render(rec, OriginHistory, now)

	body := Body(rec)
	require.True(t, strings.HasPrefix(latest, body))
	require.True(t, strings.HasPrefix(history, body))
	assert.Equal(t, `<div class="timestamp">Latest • 5m ago</div>`, strings.TrimPrefix(latest, body))
	assert.Equal(t, `<div class="history-indicator">📚 From History</div><div class="timestamp">From History • 5m ago</div>`,
		strings.TrimPrefix(history, body))
}

func TestRenderLatest(t *testing.T) {
	tests := []struct {
		name      string
		rec       *models.AnalysisRecord
		wantEmpty bool
	}{
		{name: "no record", rec: nil, wantEmpty: true},
		{name: "fresh record", rec: tokenRecord()},
		{
			name: "stale record",
			rec: func() *models.AnalysisRecord {
				r := tokenRecord()
				r.Timestamp = now.Add(-31 * time.Minute)
				return r
			}(),
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderLatest(tt.rec, now)
			if tt.wantEmpty {
				assert.Equal(t, EmptyLatest(), out)
			} else {
				assert.Contains(t, out, "Latest • 5m ago")
			}
		})
	}
}

func TestRenderHistory(t *testing.T) {
	assert.Contains(t, RenderHistory(nil, now), "No analyses yet")

	contract := models.AnalysisRecord{
		ID:        "rec-2",
		Token:     "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
		Kind:      models.KindContract,
		Preview:   "proxy contract",
		Timestamp: now.Add(-2 * time.Hour),
	}
	out := RenderHistory([]models.AnalysisRecord{*tokenRecord(), contract}, now)

	assert.Contains(t, out, "2 Analyses")
	assert.Contains(t, out, `data-history-id="rec-1"`)
	assert.Contains(t, out, `data-history-id="rec-2"`)
	assert.Equal(t, 1, strings.Count(out, "badge-contract"))
	assert.Equal(t, 1, strings.Count(out, "badge-data"))
	assert.Contains(t, out, `<div class="history-time">5m ago</div>`)
	assert.Contains(t, out, `<div class="history-time">2h ago</div>`)
	assert.Contains(t, out, `<img src="https://assets.example.com/bnb.png" class="history-icon"`)
	assert.Contains(t, out, `<span class="history-icon contract">📜</span>`)
	assert.Less(t, strings.Index(out, "rec-1"), strings.Index(out, "rec-2"))
}

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{age: 0, want: "just now"},
		{age: 59 * time.Second, want: "just now"},
		{age: time.Minute, want: "1m ago"},
		{age: 59 * time.Minute, want: "59m ago"},
		{age: time.Hour, want: "1h ago"},
		{age: 23 * time.Hour, want: "23h ago"},
		{age: 49 * time.Hour, want: "2d ago"},
		{age: -time.Minute, want: "just now"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.age), now))
		})
	}
}

func TestChangeColor(t *testing.T) {
	assert.Equal(t, ColorUp, ChangeColor(models.MetricOf(0)))
	assert.Equal(t, ColorUp, ChangeColor(models.MetricOf(3.2)))
	assert.Equal(t, ColorDown, ChangeColor(models.MetricOf(-0.01)))
	assert.Equal(t, ColorUnknown, ChangeColor(models.Unavailable()))
}

func TestFormatAnalysis_Empty(t *testing.T) {
	assert.Equal(t, "", FormatAnalysis("  \n "))
}
