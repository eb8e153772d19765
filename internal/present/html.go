// Package present turns analysis records into popup markup and terminal output.
// Everything here is a pure function of its arguments.
package present

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/songzhibin97/tokenlens/internal/models"
)

// Origin selects the footer shown under a rendered record.
type Origin string

const (
	OriginLatest  Origin = "latest"
	OriginHistory Origin = "history"
)

const (
	ColorUp      = "#10B981"
	ColorDown    = "#EF4444"
	ColorUnknown = "#6B7280"
)

var (
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	bulletPattern   = regexp.MustCompile(`^[*-]\s+(.*)$`)
	numberedPattern = regexp.MustCompile(`^(\d+)\.\s+(.*)$`)
	paragraphBreak  = regexp.MustCompile(`\n[ \t]*\n\s*`)
)

// Body renders a record without any origin footer.
func Body(rec *models.AnalysisRecord) string {
	var b strings.Builder

	if rec.Kind == models.KindContract {
		writeContractHeader(&b, rec)
	} else {
		writeTokenHeader(&b, rec)
	}

	switch {
	case rec.HasMarketData():
		writeStats(&b, rec.Snapshot)
	case rec.Kind == models.KindToken && rec.DataError != "":
		fmt.Fprintf(&b, `<div class="warning">⚠️ %s</div>`, html.EscapeString(rec.DataError))
	}

	if rec.RiskSeverity != "" || len(rec.RiskFlags) > 0 {
		b.WriteString(`<div class="risk-flags">`)
		if rec.RiskSeverity != "" {
			fmt.Fprintf(&b, `<div class="section-header">🚩 Risk: <span class="severity severity-%s">%s</span> (%.2f)</div>`,
				html.EscapeString(strings.ToLower(rec.RiskSeverity)), html.EscapeString(rec.RiskSeverity), rec.RiskScore)
		} else {
			b.WriteString(`<div class="section-header">🚩 Risk Flags</div>`)
		}
		for _, flag := range rec.RiskFlags {
			fmt.Fprintf(&b, `<div class="bullet-item"><span class="bullet">•</span><span class="bullet-text">%s</span></div>`, html.EscapeString(flag))
		}
		b.WriteString(`</div>`)
	}

	b.WriteString(`<div class="analysis-content">`)
	b.WriteString(FormatAnalysis(rec.Analysis))
	b.WriteString(`</div>`)

	return b.String()
}

// Render is Body plus the footer for origin, with the age measured at now.
func Render(rec *models.AnalysisRecord, origin Origin, now time.Time) string {
	return Body(rec) + footer(origin, rec.Timestamp, now)
}

// RenderLatest renders the latest result, or the empty state when there is none
// or it fell out of the display window.
func RenderLatest(rec *models.AnalysisRecord, now time.Time) string {
	if rec == nil || now.Sub(rec.Timestamp) >= models.LatestDisplayWindow {
		return EmptyLatest()
	}
	return Render(rec, OriginLatest, now)
}

func EmptyLatest() string {
	return `<div class="empty-state">` +
		`<div>🔍 Select a token ticker like <strong>$BNB</strong></div>` +
		`<div class="hint">Right-click → Analyze with TokenLens</div>` +
		`</div>`
}

func Loading() string {
	return `<div class="loading">` +
		`<div class="loading-title">🧹 TokenLens is analyzing...</div>` +
		`<div class="hint">Fetching on-chain data and AI insights</div>` +
		`</div>`
}

// RenderHistory renders the history list, most recent first as stored.
func RenderHistory(records []models.AnalysisRecord, now time.Time) string {
	if len(records) == 0 {
		return `<div class="history-empty">` +
			`<div>📚 No analyses yet</div>` +
			`<div class="hint">Right-click a token to get started!</div>` +
			`</div>`
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="history-header"><div class="history-count">%d Analyses</div>`, len(records))
	b.WriteString(`<button class="clear-all-btn" id="clearHistoryBtn">Clear All</button></div>`)

	for i := range records {
		rec := &records[i]
		fmt.Fprintf(&b, `<div class="history-item" data-history-id="%s">`, html.EscapeString(rec.ID))
		b.WriteString(`<div class="history-row">`)
		b.WriteString(historyIcon(rec))
		fmt.Fprintf(&b, `<div class="history-main"><div class="history-token">%s</div>`, html.EscapeString(rec.Token))
		if rec.Kind == models.KindContract {
			b.WriteString(`<span class="badge badge-contract">Contract</span>`)
		}
		if rec.HasMarketData() {
			b.WriteString(`<span class="badge badge-data">Market Data</span>`)
		}
		b.WriteString(`</div></div>`)
		fmt.Fprintf(&b, `<div class="history-preview">%s</div>`, html.EscapeString(rec.Preview))
		fmt.Fprintf(&b, `<div class="history-time">%s</div>`, TimeAgo(rec.Timestamp, now))
		b.WriteString(`</div>`)
	}

	return b.String()
}

// TimeAgo is a coarse relative age label.
func TimeAgo(ts, now time.Time) string {
	diff := int64(now.Sub(ts) / time.Second)
	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	default:
		return fmt.Sprintf("%dd ago", diff/86400)
	}
}

// ChangeColor picks the display color for a 24h change.
func ChangeColor(change models.Metric) string {
	v, ok := change.Value()
	switch {
	case !ok:
		return ColorUnknown
	case v >= 0:
		return ColorUp
	default:
		return ColorDown
	}
}

// FormatAnalysis converts the light markdown used by completions into markup.
// The text is escaped before any tags are introduced.
func FormatAnalysis(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, para := range paragraphBreak.Split(text, -1) {
		b.WriteString(`<div class="paragraph">`)
		prevBlock := true
		for _, line := range strings.Split(para, "\n") {
			out, block := formatLine(line)
			if !prevBlock && !block {
				b.WriteString("<br>")
			}
			b.WriteString(out)
			prevBlock = block
		}
		b.WriteString(`</div>`)
	}
	return b.String()
}

func formatLine(line string) (string, bool) {
	escaped := boldPattern.ReplaceAllString(html.EscapeString(line), "<strong>$1</strong>")
	trimmed := strings.TrimSpace(escaped)

	if m := bulletPattern.FindStringSubmatch(trimmed); m != nil {
		return `<div class="bullet-item"><span class="bullet">•</span><span class="bullet-text">` + m[1] + `</span></div>`, true
	}
	if m := numberedPattern.FindStringSubmatch(trimmed); m != nil {
		return `<div class="numbered-item">` + m[1] + `. <span class="numbered-text">` + m[2] + `</span></div>`, true
	}
	return escaped, false
}

func writeContractHeader(b *strings.Builder, rec *models.AnalysisRecord) {
	b.WriteString(`<div class="token-header contract"><span>📜</span><div><strong>Contract Analysis</strong><br>`)
	fmt.Fprintf(b, `<span class="address">%s</span></div></div>`, html.EscapeString(rec.Token))
}

func writeTokenHeader(b *strings.Builder, rec *models.AnalysisRecord) {
	b.WriteString(`<div class="token-header">`)

	icon, name := "", ""
	if rec.Snapshot != nil {
		icon, name = rec.Snapshot.Icon, rec.Snapshot.Name
	}
	if isRemoteURL(icon) {
		fmt.Fprintf(b, `<img src="%s" class="token-icon" alt="%s icon">`, html.EscapeString(icon), html.EscapeString(rec.Token))
	} else {
		b.WriteString(`<div class="token-icon-placeholder">?</div>`)
	}

	fmt.Fprintf(b, `<div class="token-title"><div class="token-symbol">%s</div>`, html.EscapeString(rec.Token))
	if name != "" {
		fmt.Fprintf(b, `<div class="token-name">%s</div>`, html.EscapeString(name))
	}
	b.WriteString(`</div></div>`)
}

func writeStats(b *strings.Builder, s *models.MarketSnapshot) {
	b.WriteString(`<div class="onchain-section"><div class="section-header">📊 Market Stats</div><div class="stats-grid">`)
	stat := func(label, value string) {
		fmt.Fprintf(b, `<div><strong>%s:</strong> %s</div>`, label, html.EscapeString(value))
	}
	stat("Price", s.PriceText())
	stat("Market Cap", s.MarketCapText())
	stat("24h Volume", s.VolumeText())
	fmt.Fprintf(b, `<div><strong>24h Change:</strong> <span style="color: %s;">%s</span></div>`,
		ChangeColor(s.PriceChange24h), html.EscapeString(s.ChangeText()))
	stat("Circ. Supply", s.SupplyText())
	stat("Liquidity", s.LiquidityText())
	stat("Top Holders", s.HoldersText())
	stat("Whale Activity", s.WhaleText())
	b.WriteString(`</div></div>`)
}

func historyIcon(rec *models.AnalysisRecord) string {
	switch {
	case rec.Kind == models.KindContract:
		return `<span class="history-icon contract">📜</span>`
	case rec.Snapshot != nil && isRemoteURL(rec.Snapshot.Icon):
		return fmt.Sprintf(`<img src="%s" class="history-icon" alt="%s icon">`,
			html.EscapeString(rec.Snapshot.Icon), html.EscapeString(rec.Token))
	default:
		return `<div class="history-icon-placeholder">?</div>`
	}
}

func footer(origin Origin, ts, now time.Time) string {
	if origin == OriginHistory {
		return `<div class="history-indicator">📚 From History</div>` +
			fmt.Sprintf(`<div class="timestamp">From History • %s</div>`, TimeAgo(ts, now))
	}
	return fmt.Sprintf(`<div class="timestamp">Latest • %s</div>`, TimeAgo(ts, now))
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
