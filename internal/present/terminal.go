package present

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/songzhibin97/tokenlens/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8B5CF6")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	statsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)
)

// TerminalRenderer prints records for the CLI. The analysis text goes through
// glamour since completions answer in markdown.
type TerminalRenderer struct {
	markdown *glamour.TermRenderer
	width    int
}

// NewTerminalRenderer builds a renderer. An empty style picks one from the terminal.
func NewTerminalRenderer(width int, style string) (*TerminalRenderer, error) {
	if width <= 0 {
		width = 80
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}

	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &TerminalRenderer{markdown: md, width: width}, nil
}

// Record renders one record with the footer for origin.
func (r *TerminalRenderer) Record(rec *models.AnalysisRecord, origin Origin, now time.Time) (string, error) {
	var sections []string

	if rec.Kind == models.KindContract {
		sections = append(sections, titleStyle.Render("📜 Contract Analysis"), subtitleStyle.Render(rec.Token))
	} else {
		sections = append(sections, titleStyle.Render(rec.Token))
		if rec.Snapshot != nil && rec.Snapshot.Name != "" {
			sections = append(sections, subtitleStyle.Render(rec.Snapshot.Name))
		}
	}

	switch {
	case rec.HasMarketData():
		sections = append(sections, r.stats(rec.Snapshot))
	case rec.Kind == models.KindToken && rec.DataError != "":
		sections = append(sections, warningStyle.Render("⚠ "+rec.DataError))
	}

	if rec.RiskSeverity != "" {
		sections = append(sections, flagStyle.Render(fmt.Sprintf("Risk: %s (%.2f)", rec.RiskSeverity, rec.RiskScore)))
	}
	for _, flag := range rec.RiskFlags {
		sections = append(sections, flagStyle.Render("• "+flag))
	}

	analysis, err := r.markdown.Render(rec.Analysis)
	if err != nil {
		return "", fmt.Errorf("render analysis: %w", err)
	}
	sections = append(sections, strings.TrimRight(analysis, "\n"))

	label := "Latest"
	if origin == OriginHistory {
		label = "From History"
	}
	sections = append(sections, footerStyle.Render(fmt.Sprintf("%s • %s", label, TimeAgo(rec.Timestamp, now))))

	return lipgloss.JoinVertical(lipgloss.Left, sections...), nil
}

// Latest renders the latest result or a hint when nothing is displayable.
func (r *TerminalRenderer) Latest(rec *models.AnalysisRecord, now time.Time) (string, error) {
	if rec == nil || now.Sub(rec.Timestamp) >= models.LatestDisplayWindow {
		return subtitleStyle.Render("No recent analysis. Try: tokenlens analyze '$BNB'"), nil
	}
	return r.Record(rec, OriginLatest, now)
}

// History renders the log as a table.
func (r *TerminalRenderer) History(records []models.AnalysisRecord, now time.Time) string {
	if len(records) == 0 {
		return subtitleStyle.Render("No analyses yet")
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		data := ""
		if rec.HasMarketData() {
			data = "✓"
		}
		rows = append(rows, []string{
			rec.ID,
			rec.Token,
			string(rec.Kind),
			data,
			TimeAgo(rec.Timestamp, now),
			truncate(rec.Preview, 40),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers("ID", "TOKEN", "TYPE", "DATA", "WHEN", "PREVIEW").
		Rows(rows...)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("%d Analyses", len(records))),
		t.String(),
	)
}

func (r *TerminalRenderer) stats(s *models.MarketSnapshot) string {
	changeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ChangeColor(s.PriceChange24h)))

	lines := []string{
		labelStyle.Render("Price: ") + s.PriceText(),
		labelStyle.Render("Market Cap: ") + s.MarketCapText(),
		labelStyle.Render("24h Volume: ") + s.VolumeText(),
		labelStyle.Render("24h Change: ") + changeStyle.Render(s.ChangeText()),
		labelStyle.Render("Circ. Supply: ") + s.SupplyText(),
		labelStyle.Render("Liquidity: ") + s.LiquidityText(),
		labelStyle.Render("Top Holders: ") + s.HoldersText(),
		labelStyle.Render("Whale Activity: ") + s.WhaleText(),
	}
	return statsStyle.Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
