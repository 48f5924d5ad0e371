// Package scheduler runs the tracker on a fixed interval and keeps the last
// cycle report for the status endpoint.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pricewatch/internal/tracker"
)

// Runner runs one tracking cycle.
type Runner interface {
	RunAll(ctx context.Context, aliases ...string) *tracker.CycleReport
}

// Config configures the scheduler.
type Config struct {
	// Interval between cycle starts. Default: 1 hour.
	Interval time.Duration
	// Timeout bounds a single cycle. Zero means no bound.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
}

// Scheduler triggers cycles on a ticker. Ticks that arrive while a cycle is
// still running are dropped, so cycles never overlap.
type Scheduler struct {
	runner Runner
	config Config
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	last    *tracker.CycleReport
	running bool
	runs    int
}

// New creates a Scheduler.
func New(runner Runner, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{runner: runner, config: cfg, logger: logger}
}

// Run runs a cycle immediately and then on every tick. Blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Infow("Scheduler started", "interval", s.config.Interval, "timeout", s.config.Timeout)
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle under the configured timeout and stores its
// report. It returns nil when a cycle is already running.
func (s *Scheduler) RunOnce(ctx context.Context) *tracker.CycleReport {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous cycle still running, skipping tick")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	runCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	report := s.runner.RunAll(runCtx)

	s.mu.Lock()
	s.last = report
	s.running = false
	s.runs++
	s.mu.Unlock()
	return report
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Interval   time.Duration        `json:"interval"`
	Running    bool                 `json:"running"`
	Runs       int                  `json:"runs"`
	LastReport *tracker.CycleReport `json:"last_report"`
}

// Status returns the scheduler state and the last completed report.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Interval: s.config.Interval, Running: s.running, Runs: s.runs, LastReport: s.last}
}
