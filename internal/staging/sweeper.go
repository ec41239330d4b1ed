package staging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"videopipe/internal/logging"
)

// Target pairs a directory with the policy applied to it.
type Target struct {
	Dir    string
	Policy Policy
}

// Sweeper runs Sweep over its targets once at start and then periodically.
type Sweeper struct {
	targets  []Target
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper returns a sweeper. A non-positive interval sweeps once.
func NewSweeper(interval time.Duration, logger *slog.Logger, targets ...Target) *Sweeper {
	return &Sweeper{
		targets:  targets,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "sweeper"),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
		if s.interval <= 0 {
			return
		}
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-progress sweep.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce sweeps every target and returns the combined result.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	var total Result
	for _, target := range s.targets {
		res := Sweep(ctx, target.Dir, target.Policy, s.logger)
		total.Removed = append(total.Removed, res.Removed...)
		total.FreedBytes += res.FreedBytes
		total.Errors = append(total.Errors, res.Errors...)
	}
	if len(total.Removed) > 0 || len(total.Errors) > 0 {
		s.logger.Info("sweep complete",
			logging.Int("removed", len(total.Removed)),
			logging.Int64("freed_bytes", total.FreedBytes),
			logging.Int("errors", len(total.Errors)),
			logging.String(logging.FieldEventType, "sweep_complete"),
		)
	}
	return total
}
