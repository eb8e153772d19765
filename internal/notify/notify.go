// Package notify fans pipeline signals out to popup surfaces and tracks the
// lifecycle of user-facing notifications.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/observability"
)

type EventType string

const (
	EventRefresh      EventType = "refresh"
	EventShowLoading  EventType = "show_loading"
	EventNotification EventType = "notification"
	EventDismiss      EventType = "dismiss"
)

// Stage 通知所处的生命周期阶段
type Stage string

const (
	StageStarted    Stage = "started"
	StageThinking   Stage = "thinking"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
	StageSetupError Stage = "setup_error"
)

type Notification struct {
	ID      string `json:"id"`
	Stage   Stage  `json:"stage"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Event struct {
	Type         EventType     `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Notifier is the signal surface the orchestrator talks to. None of its
// methods block on subscribers.
type Notifier interface {
	ShowLoading()
	Refresh()
	Notify(n Notification)
	Dismiss(id string, after time.Duration)
}

const defaultBuffer = 16

// Hub is an in-process broadcaster. Slow subscribers lose events rather than
// stall the pipeline.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	timers  map[string]*time.Timer
	buffer  int
	closed  bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[int]chan Event),
		timers:  make(map[string]*time.Timer),
		buffer:  defaultBuffer,
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
			h.metrics.RecordEvent(string(ev.Type), false)
		default:
			h.metrics.RecordEvent(string(ev.Type), true)
			h.logger.Info("dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

func (h *Hub) ShowLoading() {
	h.Publish(Event{Type: EventShowLoading})
}

func (h *Hub) Refresh() {
	h.Publish(Event{Type: EventRefresh})
}

func (h *Hub) Notify(n Notification) {
	h.Publish(Event{Type: EventNotification, Notification: &n})
}

// Dismiss clears notification id after the delay. A later Dismiss for the same id
// replaces the pending one.
func (h *Hub) Dismiss(id string, after time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if t, ok := h.timers[id]; ok {
		t.Stop()
	}
	h.timers[id] = time.AfterFunc(after, func() {
		h.mu.Lock()
		delete(h.timers, id)
		h.mu.Unlock()
		h.Publish(Event{Type: EventDismiss, Notification: &Notification{ID: id}})
	})
}

// Pending returns the number of scheduled dismissals.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Close stops pending dismissals and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

var _ Notifier = (*Hub)(nil)

// Started is shown as soon as a pipeline run begins.
func Started(id, token string, kind models.QueryKind, source models.TriggerSource) Notification {
	origin := "Manual triggered"
	switch source {
	case models.SourceCursor:
		origin = "Smart detected"
	case models.SourceSelection:
		origin = "Selected"
	}
	action := "searching"
	if kind == models.KindContract {
		action = "scanning"
	}
	return Notification{
		ID:      id,
		Stage:   StageStarted,
		Title:   "TokenLens Activated!",
		Message: fmt.Sprintf("%s %s for %s...", origin, action, token),
	}
}

func Thinking(id, token string, kind models.QueryKind) Notification {
	data := "on-chain data"
	if kind == models.KindContract {
		data = "contract data"
	}
	return Notification{
		ID:      id,
		Stage:   StageThinking,
		Title:   "TokenLens Thinking!",
		Message: fmt.Sprintf("Analyzing %s with %s...", token, data),
	}
}

func Succeeded(id string, kind models.QueryKind) Notification {
	what := "Token analysis"
	if kind == models.KindContract {
		what = "Contract scan"
	}
	return Notification{
		ID:      id,
		Stage:   StageSucceeded,
		Title:   "Analysis Ready!",
		Message: what + " complete! Check popup.",
	}
}

func Failed(id string, kind models.QueryKind, err error) Notification {
	what := "Analysis"
	if kind == models.KindContract {
		what = "Contract scan"
	}
	return Notification{
		ID:      id,
		Stage:   StageFailed,
		Title:   "TokenLens Error!",
		Message: fmt.Sprintf("%s failed: %v", what, err),
	}
}

// SetupError reports a missing completion credential.
func SetupError() Notification {
	return Notification{
		ID:      "setup-error",
		Stage:   StageSetupError,
		Title:   "TokenLens Setup Error!",
		Message: "API key not configured. Set GROQ_API_KEY or ai_config.api_key.",
	}
}
