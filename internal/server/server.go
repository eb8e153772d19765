// Package server exposes the analysis pipeline to popup and page surfaces over
// HTTP, and streams pipeline signals over a WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/songzhibin97/tokenlens/internal/data"
	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/detector"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/notify"
	"github.com/songzhibin97/tokenlens/internal/observability"
	"github.com/songzhibin97/tokenlens/internal/orchestrator"
	"github.com/songzhibin97/tokenlens/internal/present"
	"github.com/songzhibin97/tokenlens/internal/trigger"
)

// Analyzer runs pipelines and reports whether it is able to.
type Analyzer interface {
	trigger.Runner
	CheckConfiguration() error
}

type Deps struct {
	Analyzer   Analyzer
	Storage    data.AnalysisStorage
	Detections *detector.Registry
	Hub        *notify.Hub
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

type Server struct {
	deps       Deps
	engine     *gin.Engine
	dispatcher *trigger.Dispatcher
	upgrader   websocket.Upgrader
	now        func() time.Time

	// detached pipeline runs
	runs sync.WaitGroup
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		deps:       deps,
		dispatcher: trigger.NewDispatcher(deps.Detections, deps.Logger),
		upgrader: websocket.Upgrader{
			// popup surfaces connect from extension origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	{
		api.POST("/analyze", s.analyze)
		api.POST("/menu-click", s.menuClick)
		api.POST("/detections", s.observeDetection)
		api.GET("/detections/:tabId", s.queryDetection)
		api.DELETE("/detections/:tabId", s.forgetDetection)
		api.GET("/latest", s.latest)
		api.GET("/history", s.history)
		api.DELETE("/history", s.clearHistory)
	}

	popup := r.Group("/popup")
	{
		popup.GET("/latest", s.popupLatest)
		popup.GET("/loading", func(c *gin.Context) { s.html(c, present.Loading()) })
		popup.GET("/history", s.popupHistory)
		popup.GET("/history/:id", s.popupHistoryRecord)
	}

	r.GET("/ws", s.stream)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.Handler(deps.Gatherer)))
	}

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down and waits for
// detached runs to finish.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

// Wait blocks until every detached pipeline run has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.deps.Logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

type analyzeRequest struct {
	Query  string               `json:"query"`
	Source models.TriggerSource `json:"source"`
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if !req.Source.Valid() {
		req.Source = models.SourceManual
	}

	if !s.start(c, req.Query, req.Source) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"token": req.Query, "source": req.Source})
}

func (s *Server) menuClick(c *gin.Context) {
	var click trigger.Click
	if err := c.ShouldBindJSON(&click); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := s.dispatcher.Decide(click)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !outcome.Ready() {
		c.JSON(http.StatusOK, outcome)
		return
	}

	if !s.start(c, outcome.Token, outcome.Source) {
		return
	}
	c.JSON(http.StatusAccepted, outcome)
}

// start launches a detached run on a background context.
func (s *Server) start(c *gin.Context, token string, source models.TriggerSource) bool {
	if err := s.deps.Analyzer.CheckConfiguration(); err != nil {
		// surfaces the one-time setup notification
		_, _ = s.deps.Analyzer.Analyze(c.Request.Context(), token, source)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return false
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.deps.Analyzer.Analyze(context.Background(), token, source); err != nil {
			s.deps.Logger.Error("detached analysis failed", "token", token, "err", err)
		}
	}()
	return true
}

type detectionRequest struct {
	TabID string `json:"tabId"`
	detector.ContextEvent
}

func (s *Server) observeDetection(c *gin.Context) {
	// an omitted caretOffset means the caret is not in a text node
	req := detectionRequest{ContextEvent: detector.ContextEvent{CaretOffset: -1}}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TabID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tabId is required"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Detections.Observe(req.TabID, req.ContextEvent))
}

func (s *Server) queryDetection(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Detections.Query(detector.TickerQuery{TabID: c.Param("tabId")}))
}

func (s *Server) forgetDetection(c *gin.Context) {
	s.deps.Detections.Forget(c.Param("tabId"))
	c.Status(http.StatusNoContent)
}

func (s *Server) latest(c *gin.Context) {
	rec, err := s.deps.Storage.LatestForDisplay(c.Request.Context(), s.now())
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) history(c *gin.Context) {
	records, err := s.deps.Storage.History(c.Request.Context())
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.deps.Storage.ClearHistory(c.Request.Context()); err != nil {
		s.storageError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) popupLatest(c *gin.Context) {
	rec, err := s.deps.Storage.LatestForDisplay(c.Request.Context(), s.now())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.storageError(c, err)
		return
	}
	s.html(c, present.RenderLatest(rec, s.now()))
}

func (s *Server) popupHistory(c *gin.Context) {
	records, err := s.deps.Storage.History(c.Request.Context())
	if err != nil {
		s.storageError(c, err)
		return
	}
	s.html(c, present.RenderHistory(records, s.now()))
}

func (s *Server) popupHistoryRecord(c *gin.Context) {
	rec, err := s.deps.Storage.HistoryRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageError(c, err)
		return
	}
	s.html(c, present.Render(rec, present.OriginHistory, s.now()))
}

func (s *Server) html(c *gin.Context, body string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) storageError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.deps.Logger.Error("storage request failed", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

var _ Analyzer = (*orchestrator.Analyzer)(nil)
