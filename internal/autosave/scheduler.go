// Package autosave runs periodic background saves.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often a running scheduler attempts a save.
const DefaultInterval = 2 * time.Minute

// Saver performs one auto-save attempt. It decides on its own whether
// there is anything to write.
type Saver interface {
	AutoSave(ctx context.Context) error
}

// Scheduler fires Saver.AutoSave on a fixed interval. Start and Stop are
// idempotent and a tick never overlaps the previous attempt.
type Scheduler struct {
	saver    Saver
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	attempt sync.Mutex
}

// New returns a stopped scheduler.
func New(saver Saver, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{saver: saver, interval: interval, logger: logger}
}

// Start arms the timer, replacing any previous one. The first attempt
// happens one full interval after the last Start.
func (s *Scheduler) Start() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.loop(ctx, done)
	s.logger.Debug("autosave: started", slog.Duration("interval", s.interval))
}

// Stop disarms the timer and waits for an attempt in progress to return.
// It is safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("autosave: stopped")
}

// Running reports whether the timer is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// RunOnce performs a single attempt now, serialized with timer ticks.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.attempt.Lock()
	defer s.attempt.Unlock()
	return s.saver.AutoSave(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("autosave: attempt failed", slog.String("error", err.Error()))
			}
		}
	}
}
