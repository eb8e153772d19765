package detector

import (
	"log/slog"
	"sync"
)

// TickerQuery asks for the last detection on one surface.
type TickerQuery struct {
	TabID string `json:"tabId"`
}

// TickerResponse carries the detected ticker, nil when nothing was found.
type TickerResponse struct {
	Ticker *string `json:"ticker"`
}

// Registry keeps the most recent detection per surface so that the dispatcher,
// running elsewhere, can ask for it explicitly.
type Registry struct {
	mu     sync.RWMutex
	byTab  map[string]string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byTab:  make(map[string]string),
		logger: logger,
	}
}

// Observe runs detection for ev and records the outcome for tabID. A miss
// clears any earlier detection for that tab.
func (r *Registry) Observe(tabID string, ev ContextEvent) TickerResponse {
	ticker, ok := Detect(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !ok {
		delete(r.byTab, tabID)
		return TickerResponse{}
	}

	r.byTab[tabID] = ticker
	r.logger.Debug("ticker detected", "tab", tabID, "ticker", ticker)
	return TickerResponse{Ticker: &ticker}
}

// Query answers a TickerQuery.
func (r *Registry) Query(q TickerQuery) TickerResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticker, ok := r.byTab[q.TabID]
	if !ok {
		return TickerResponse{}
	}
	return TickerResponse{Ticker: &ticker}
}

// Forget drops the detection for a surface that went away.
func (r *Registry) Forget(tabID string) {
	r.mu.Lock()
	delete(r.byTab, tabID)
	r.mu.Unlock()
}
