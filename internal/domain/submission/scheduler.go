package submission

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig sets the cadence of the background loops.
type SchedulerConfig struct {
	// WindowCheckInterval is how often ready batches are promoted into the
	// queue while the legal window is open.
	WindowCheckInterval time.Duration
	// DrainInterval is how often the queue is drained. Retry items become
	// due between drains, so this bounds added retry latency.
	DrainInterval time.Duration
	// ReclaimInterval is how often stale processing locks are released.
	ReclaimInterval time.Duration
	// CleanupInterval is how often finished queue items are purged.
	CleanupInterval time.Duration
}

// Scheduler runs the engine's periodic work: window promotion, queue
// draining, the crash watchdog and queue cleanup. One goroutine per loop.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(engine *Engine, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.WindowCheckInterval <= 0 {
		cfg.WindowCheckInterval = time.Hour
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 5 * time.Minute
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &Scheduler{
		engine: engine,
		cfg:    cfg,
		log:    log.With().Str("component", "workflow_scheduler").Logger(),
	}
}

// Start launches the background loops. Each loop fires once immediately so a
// restart resumes pending work without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, "window_check", s.cfg.WindowCheckInterval, func(ctx context.Context) {
		if n, err := s.engine.PromoteReady(ctx); err != nil {
			s.log.Error().Err(err).Msg("window promotion failed")
		} else if n > 0 {
			s.log.Info().Int("queued", n).Msg("promoted ready batches")
		}
	})
	s.loop(ctx, "queue_drain", s.cfg.DrainInterval, func(ctx context.Context) {
		if _, err := s.engine.ProcessQueue(ctx); err != nil {
			s.log.Error().Err(err).Msg("queue drain failed")
		}
	})
	s.loop(ctx, "lock_watchdog", s.cfg.ReclaimInterval, func(ctx context.Context) {
		if _, err := s.engine.Reclaim(ctx); err != nil {
			s.log.Error().Err(err).Msg("lock reclaim failed")
		}
	})
	s.loop(ctx, "queue_cleanup", s.cfg.CleanupInterval, func(ctx context.Context) {
		if _, err := s.engine.Cleanup(ctx); err != nil {
			s.log.Error().Err(err).Msg("queue cleanup failed")
		}
	})

	s.log.Info().
		Dur("window_check", s.cfg.WindowCheckInterval).
		Dur("queue_drain", s.cfg.DrainInterval).
		Msg("workflow scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick(ctx)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Debug().Str("loop", name).Msg("loop stopped")
				return
			case <-t.C:
				tick(ctx)
			}
		}
	}()
}

// Stop cancels the loops and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("workflow scheduler stopped")
}
