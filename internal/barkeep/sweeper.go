package barkeep

import (
	"log/slog"
	"time"
)

// Sweeper periodically removes expired refresh sessions so the session
// table does not grow without bound.
type Sweeper struct {
	Service  *Service
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a sweeper with the given interval.
// If interval is 0 or negative, defaults to 5 minutes.
func NewSweeper(svc *Service, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Sweeper{
		Service:  svc,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. This is non-blocking; call Stop
// to shut the worker down.
func (s *Sweeper) Start() {
	go s.run()
	s.Logger.Info("session sweeper started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress sweep has finished.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("session sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	removed := s.Service.SweepSessions(time.Now())
	if removed > 0 {
		s.Logger.Info("swept expired refresh sessions", "removed", removed)
		return
	}
	s.Logger.Debug("sweep found no expired refresh sessions")
}
