package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler manages the execution of a process at a configurable interval.
// An execution is never started while the previous one is still in flight.
type Scheduler struct {
	name     string
	ticker   *time.Ticker
	process  Process
	log      *zerolog.Logger
	interval time.Duration
	mu       sync.Mutex

	inflight atomic.Bool
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSchedulerWithInterval creates a new scheduler with a parsed interval string
func NewSchedulerWithInterval(intervalExpr string, process Process, log *zerolog.Logger) (*Scheduler, error) {
	duration, err := ParseEveryExpr(intervalExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse interval: %w", err)
	}

	return &Scheduler{
		name:     process.Name(),
		ticker:   time.NewTicker(duration),
		process:  process,
		log:      log,
		interval: duration,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs the scheduler loop in the background. Use Stop to wait for it.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Run starts the scheduler and blocks until context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	defer s.ticker.Stop()

	s.log.Info().
		Str("Process", s.name).
		Dur("interval", s.GetInterval()).
		Msg("Starting scheduler")

	// Run once immediately
	s.launchProcess(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().
				Str("Process", s.name).
				Msg("Scheduler received cancellation signal. Exiting...")
			return

		case <-s.stopCh:
			s.log.Info().
				Str("Process", s.name).
				Msg("Scheduler stopped")
			return

		case <-s.ticker.C:
			if s.process.IsComplete() {
				s.log.Info().
					Str("Process", s.name).
					Msg("Process marked as complete. Stopping scheduling.")
				return
			}
			s.launchProcess(ctx)
		}
	}
}

// ResetInterval changes the ticker interval dynamically
func (s *Scheduler) ResetInterval(newInterval time.Duration) {
	s.mu.Lock()
	s.ticker.Reset(newInterval)
	s.interval = newInterval
	s.mu.Unlock()

	s.log.Info().
		Str("Process", s.name).
		Dur("newInterval", newInterval).
		Msg("Scheduler interval reset")
}

// ResetIntervalFromExpr changes the ticker interval using an expression string
func (s *Scheduler) ResetIntervalFromExpr(intervalExpr string) error {
	duration, err := ParseEveryExpr(intervalExpr)
	if err != nil {
		return fmt.Errorf("failed to parse interval: %w", err)
	}

	s.ResetInterval(duration)
	return nil
}

// GetInterval returns the current interval
func (s *Scheduler) GetInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Name returns the name of the scheduler
func (s *Scheduler) Name() string {
	return s.name
}

// Stop ends the scheduling loop and waits for the loop and any in-flight
// execution to return, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) launchProcess(ctx context.Context) {
	if s.process.IsRunning() || !s.inflight.CompareAndSwap(false, true) {
		s.log.Debug().
			Str("Process", s.name).
			Msg("Process already executing")
		return
	}

	s.log.Info().
		Str("Process", s.name).
		Msg("Scheduler triggering task execution")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)

		if err := s.process.Execute(ctx); err != nil {
			s.log.Warn().
				Str("Process", s.name).
				Err(err).
				Msg("Error occurred while executing process.")
		}
	}()
}

func ParseEveryExpr(expr string) (time.Duration, error) {
	const prefix = "@every "
	if expr == "" {
		return 0, fmt.Errorf("empty expression provided")
	}
	if !strings.HasPrefix(expr, prefix) {
		return 0, fmt.Errorf("unsupported format: must start with %q", prefix)
	}
	d, err := time.ParseDuration(strings.TrimPrefix(expr, prefix))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}
