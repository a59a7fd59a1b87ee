package matching

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/metrics"
	"carejoa-matching/internal/models"
)

// FeedbackHistory reads feedback for adaptation, newest first.
type FeedbackHistory interface {
	GetFeedbackHistory(ctx context.Context, since time.Time, limit int) ([]models.FeedbackRecord, error)
}

// SchedulerConfig controls the periodic loop. A zero Interval disables the
// loop; Trigger still works.
type SchedulerConfig struct {
	Interval     time.Duration
	HistoryLimit int
	HistoryAge   time.Duration
}

// AdaptationOutcome describes one adaptation or rollback attempt.
type AdaptationOutcome struct {
	PreviousVersion int64                           `json:"previousVersion"`
	Version         int64                           `json:"version"`
	Published       bool                            `json:"published"`
	Reason          string                          `json:"reason,omitempty"`
	Samples         int                             `json:"samples"`
	Weights         map[models.SubScoreName]float64 `json:"weights"`
}

// AdaptationScheduler is the single writer of the profile store. It runs
// the adapter periodically and on demand.
type AdaptationScheduler struct {
	adapter  *Adapter
	profiles *ProfileStore
	history  FeedbackHistory
	cfg      SchedulerConfig
	logger   logger.Logger
	now      func() time.Time

	mu      sync.Mutex // serializes runs
	stateMu sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewAdaptationScheduler(adapter *Adapter, profiles *ProfileStore, history FeedbackHistory, cfg SchedulerConfig, log logger.Logger) *AdaptationScheduler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &AdaptationScheduler{
		adapter:  adapter,
		profiles: profiles,
		history:  history,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "weight-adaptation"}),
		now:      time.Now,
	}
}

// Start launches the periodic loop. Calling Start twice is a no-op.
func (s *AdaptationScheduler) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.running || s.cfg.Interval <= 0 {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info("Weight adaptation scheduler started", map[string]interface{}{
		"interval": s.cfg.Interval.String(),
	})
	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *AdaptationScheduler) Stop() {
	s.stateMu.Lock()
	if !s.running {
		s.stateMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.stateMu.Unlock()
	<-done
}

func (s *AdaptationScheduler) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.Trigger(ctx); err != nil {
				s.logger.Error("Weight adaptation cycle failed", map[string]interface{}{"error": err})
			}
		}
	}
}

// Trigger runs one adaptation cycle now. Invalid history is logged and the
// active profile is kept; the returned outcome then has Published false and
// a nil error. Only failures to read history or persist the new profile are
// returned as errors.
func (s *AdaptationScheduler) Trigger(ctx context.Context) (*AdaptationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.profiles.Active()
	out := &AdaptationOutcome{
		PreviousVersion: current.Version,
		Version:         current.Version,
		Weights:         current.CopyWeights(),
	}

	var since time.Time
	if s.cfg.HistoryAge > 0 {
		since = s.now().Add(-s.cfg.HistoryAge)
	}
	history, err := s.history.GetFeedbackHistory(ctx, since, s.cfg.HistoryLimit)
	if err != nil {
		metrics.AdaptationRuns.WithLabelValues("failed").Inc()
		return nil, apperrors.NewDataUnavailableError("feedback history", err)
	}
	out.Samples = len(history)

	next, err := s.adapter.Adapt(history, current)
	switch {
	case errors.Is(err, ErrNoAdaptationSignal):
		metrics.AdaptationRuns.WithLabelValues("no_signal").Inc()
		out.Reason = err.Error()
		s.logger.Debug("No adaptation signal", map[string]interface{}{
			"version": current.Version,
			"samples": len(history),
		})
		return out, nil
	case apperrors.IsAdaptation(err):
		metrics.AdaptationRuns.WithLabelValues("skipped").Inc()
		out.Reason = err.Error()
		s.logger.Warn("Skipping weight adaptation", map[string]interface{}{
			"version": current.Version,
			"samples": len(history),
			"error":   err,
		})
		return out, nil
	case err != nil:
		metrics.AdaptationRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	published, err := s.profiles.Publish(ctx, next)
	if err != nil {
		metrics.AdaptationRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.AdaptationRuns.WithLabelValues("published").Inc()
	ObserveProfile(published)

	out.Version = published.Version
	out.Published = true
	out.Weights = published.CopyWeights()
	s.logger.Info("Published adapted weight profile", map[string]interface{}{
		"previousVersion": current.Version,
		"version":         published.Version,
		"samples":         len(history),
		"weights":         published.Weights,
	})
	return out, nil
}

// Rollback republishes an earlier version under the same writer lock.
func (s *AdaptationScheduler) Rollback(ctx context.Context, version int64) (*AdaptationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.profiles.Active().Version
	p, err := s.profiles.Rollback(ctx, version)
	if err != nil {
		return nil, err
	}
	metrics.AdaptationRuns.WithLabelValues("rollback").Inc()
	ObserveProfile(p)
	s.logger.Info("Rolled back weight profile", map[string]interface{}{
		"target":  version,
		"version": p.Version,
	})
	return &AdaptationOutcome{
		PreviousVersion: previous,
		Version:         p.Version,
		Published:       true,
		Reason:          p.Source,
		Weights:         p.CopyWeights(),
	}, nil
}

// ObserveProfile exports the active profile to the metrics registry.
func ObserveProfile(p *models.WeightProfile) {
	if p == nil {
		return
	}
	metrics.ActiveProfileVersion.Set(float64(p.Version))
	for _, name := range models.SubScoreNames {
		metrics.ActiveProfileWeight.WithLabelValues(string(name)).Set(p.Weight(name))
	}
}
