// Package trigger decides what a context-menu click should analyze: the
// selected text, the ticker detected under the cursor, or manual input.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/songzhibin97/tokenlens/internal/detector"
	"github.com/songzhibin97/tokenlens/internal/models"
)

// Menu item ids.
const (
	MenuSelection = "analyzeCryptoSelection"
	MenuDirect    = "analyzeCryptoDirect"
)

const (
	PromptInvalidSelection = "Invalid selection. Enter a token ticker (like $BNB) or contract address (0x...):"
	PromptNeedsInput       = "TokenLens needs input!\nEnter a token ticker (like $BNB) or contract address (0x...):"
)

var ErrUnknownMenuItem = errors.New("unknown menu item")

// Click is one context-menu activation.
type Click struct {
	MenuItemID    string `json:"menuItemId"`
	SelectionText string `json:"selectionText"`
	TabID         string `json:"tabId"`
}

// Outcome is either a token to analyze or a request for manual input.
type Outcome struct {
	Token      string               `json:"token,omitempty"`
	Source     models.TriggerSource `json:"source,omitempty"`
	NeedsInput bool                 `json:"needsInput"`
	Message    string               `json:"message,omitempty"`
}

// Ready reports whether the outcome names something to analyze.
func (o Outcome) Ready() bool {
	return o.Token != "" && !o.NeedsInput
}

// TickerSource answers cursor detection queries for a tab.
type TickerSource interface {
	Query(q detector.TickerQuery) detector.TickerResponse
}

// Prompter asks the user for free text. An empty answer means the user declined.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// Runner starts an analysis.
type Runner interface {
	Analyze(ctx context.Context, raw string, source models.TriggerSource) (*models.AnalysisRecord, error)
}

type Dispatcher struct {
	detections TickerSource
	logger     *slog.Logger
}

// NewDispatcher builds a dispatcher. A nil detections source behaves like an
// unreachable tab: direct clicks without a selection fall back to manual input.
func NewDispatcher(detections TickerSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{detections: detections, logger: logger}
}

// Decide maps a click to an outcome without any user interaction.
func (d *Dispatcher) Decide(click Click) (Outcome, error) {
	selection := strings.TrimSpace(click.SelectionText)

	switch click.MenuItemID {
	case MenuSelection:
		if selection == "" {
			return Outcome{NeedsInput: true, Message: PromptInvalidSelection}, nil
		}
		return decideSelection(selection), nil

	case MenuDirect:
		if selection != "" {
			return decideSelection(selection), nil
		}
		if d.detections == nil {
			d.logger.Info("cursor detection unavailable", "tab", click.TabID)
			return Outcome{NeedsInput: true, Message: PromptNeedsInput}, nil
		}
		resp := d.detections.Query(detector.TickerQuery{TabID: click.TabID})
		if resp.Ticker != nil && *resp.Ticker != "" {
			d.logger.Info("cursor detection hit", "tab", click.TabID, "ticker", *resp.Ticker)
			return Outcome{Token: *resp.Ticker, Source: models.SourceCursor}, nil
		}
		d.logger.Info("no ticker detected", "tab", click.TabID)
		return Outcome{NeedsInput: true, Message: PromptNeedsInput}, nil

	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownMenuItem, click.MenuItemID)
	}
}

func decideSelection(selection string) Outcome {
	if models.IsContractAddress(selection) || detector.IsMarkedTicker(selection) {
		return Outcome{Token: selection, Source: models.SourceSelection}
	}
	return Outcome{NeedsInput: true, Message: PromptInvalidSelection}
}

// Manual turns prompt input into an outcome. Blank input cancels.
func Manual(input string) Outcome {
	input = strings.TrimSpace(input)
	if input == "" {
		return Outcome{}
	}
	return Outcome{Token: input, Source: models.SourceManual}
}

// Dispatch decides, prompts when needed, and runs the analysis synchronously.
// It returns a nil record when the user declined the prompt.
func (d *Dispatcher) Dispatch(ctx context.Context, click Click, prompter Prompter, runner Runner) (*models.AnalysisRecord, error) {
	outcome, err := d.Decide(click)
	if err != nil {
		return nil, err
	}

	if outcome.NeedsInput {
		if prompter == nil {
			return nil, nil
		}
		input, err := prompter.Prompt(ctx, outcome.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to read manual input: %w", err)
		}
		outcome = Manual(input)
		if !outcome.Ready() {
			d.logger.Info("manual input declined")
			return nil, nil
		}
	}

	return runner.Analyze(ctx, outcome.Token, outcome.Source)
}
