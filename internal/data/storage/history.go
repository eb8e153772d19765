package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/songzhibin97/tokenlens/internal/data"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/observability"
)

// Persisted keys, shared with every surface reading the store.
const (
	KeyLatest  = "lastAnalysis"
	KeyHistory = "analysisHistory"
)

const (
	DefaultMaxEntries    = models.HistoryCap
	DefaultRetentionTTL  = models.LatestRetention
	DefaultSweepInterval = 5 * time.Minute
)

// HistoryOptions tunes the store. The display window is always
// models.LatestDisplayWindow so every surface agrees on it.
type HistoryOptions struct {
	MaxEntries   int // at most models.HistoryCap
	RetentionTTL time.Duration
}

func (o HistoryOptions) withDefaults() HistoryOptions {
	if o.MaxEntries <= 0 || o.MaxEntries > models.HistoryCap {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.RetentionTTL <= 0 {
		o.RetentionTTL = DefaultRetentionTTL
	}
	// a latest result is never swept while it is still displayable
	o.RetentionTTL = max(o.RetentionTTL, models.LatestDisplayWindow)
	return o
}

// HistoryStore keeps the latest result and the capped history log on top of a KV.
// Writers are not serialized: AppendHistory is read-modify-write and concurrent
// appends may lose entries.
type HistoryStore struct {
	kv      KV
	opts    HistoryOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewHistoryStore(kv KV, opts HistoryOptions, logger *slog.Logger, metrics *observability.Metrics) *HistoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStore{
		kv:      kv,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
}

// SaveLatest replaces the latest result.
func (s *HistoryStore) SaveLatest(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode latest: %w", err)
	}
	if err := s.kv.Set(ctx, KeyLatest, raw); err != nil {
		s.metrics.RecordStorageError("save_latest")
		return fmt.Errorf("failed to save latest: %w", err)
	}
	return nil
}

// Latest returns the stored latest result regardless of age.
func (s *HistoryStore) Latest(ctx context.Context) (*models.AnalysisRecord, error) {
	raw, err := s.kv.Get(ctx, KeyLatest)
	if err != nil {
		return nil, err
	}
	var rec models.AnalysisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode latest: %w", err)
	}
	return &rec, nil
}

// LatestForDisplay returns the latest result when it is younger than the display
// window at now, ErrNotFound otherwise.
func (s *HistoryStore) LatestForDisplay(ctx context.Context, now time.Time) (*models.AnalysisRecord, error) {
	rec, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if now.Sub(rec.Timestamp) >= models.LatestDisplayWindow {
		return nil, ErrNotFound
	}
	return rec, nil
}

// AppendHistory prepends rec and truncates the log to the configured cap.
func (s *HistoryStore) AppendHistory(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	}

	history, err := s.History(ctx)
	if errors.Is(err, ErrCorrupt) {
		s.logger.Warn("history log unreadable, starting a new one", "err", err)
		s.metrics.RecordStorageError("decode_history")
		history = nil
	} else if err != nil {
		s.metrics.RecordStorageError("append_history")
		return err
	}

	updated := make([]models.AnalysisRecord, 0, min(len(history)+1, s.opts.MaxEntries))
	updated = append(updated, *rec)
	updated = append(updated, history...)
	if len(updated) > s.opts.MaxEntries {
		updated = updated[:s.opts.MaxEntries]
	}

	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(ctx, KeyHistory, raw); err != nil {
		s.metrics.RecordStorageError("append_history")
		return fmt.Errorf("failed to save history: %w", err)
	}

	s.metrics.SetHistoryEntries(len(updated))
	return nil
}

// History returns the log, most recent first. A missing log is empty.
func (s *HistoryStore) History(ctx context.Context) ([]models.AnalysisRecord, error) {
	raw, err := s.kv.Get(ctx, KeyHistory)
	if errors.Is(err, ErrNotFound) {
		return []models.AnalysisRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var history []models.AnalysisRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrCorrupt, err)
	}
	if history == nil {
		history = []models.AnalysisRecord{}
	}
	return history, nil
}

// HistoryRecord finds a history entry by id.
func (s *HistoryStore) HistoryRecord(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID == id {
			return &history[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *HistoryStore) ClearHistory(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyHistory); err != nil {
		s.metrics.RecordStorageError("clear_history")
		return fmt.Errorf("failed to clear history: %w", err)
	}
	s.metrics.SetHistoryEntries(0)
	return nil
}

// SweepLatest deletes the latest result once it is older than the retention
// window. It reports whether anything was removed.
func (s *HistoryStore) SweepLatest(ctx context.Context, now time.Time) (bool, error) {
	rec, err := s.Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if now.Sub(rec.Timestamp) <= s.opts.RetentionTTL {
		return false, nil
	}
	if err := s.kv.Delete(ctx, KeyLatest); err != nil {
		s.metrics.RecordStorageError("sweep_latest")
		return false, fmt.Errorf("failed to sweep latest: %w", err)
	}
	s.metrics.RecordSwept()
	return true, nil
}

// RunSweeper periodically calls SweepLatest until ctx is done. The returned
// channel is closed when the goroutine exits.
func (s *HistoryStore) RunSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case now := <-ticker.C:
				removed, err := s.SweepLatest(ctx, now)
				if err != nil {
					s.logger.Error("sweep latest analysis failed", "err", err)
					continue
				}
				if removed {
					s.logger.Info("expired latest analysis removed")
				}
			}
		}
	}()

	return done
}

var _ data.AnalysisStorage = (*HistoryStore)(nil)
