package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/rs/zerolog"
)

// SweepState is the single-flight state of one sweep kind
type SweepState int

const (
	StateIdle SweepState = iota
	StateRunning
)

func (s SweepState) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Runner executes a sweep; *SweepService satisfies it
type Runner interface {
	Run(ctx context.Context, kind SweepKind) (SweepResult, error)
}

// Scheduler drives the sweeps on session-gated timers. Each sweep kind runs
// at most once at a time; a tick that finds it running is skipped.
type Scheduler struct {
	runner  Runner
	cfg     config.SchedulerConfig
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	states map[SweepKind]SweepState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(runner Runner, cfg config.SchedulerConfig, logger zerolog.Logger, metrics *Metrics) *Scheduler {
	states := make(map[SweepKind]SweepState, len(SweepKinds))
	for _, k := range SweepKinds {
		states[k] = StateIdle
	}
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		logger:  logging.Component(logger, "scheduler"),
		metrics: metrics,
		now:     time.Now,
		states:  states,
	}
}

// State returns the current state of a sweep kind
func (s *Scheduler) State(kind SweepKind) SweepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[kind]
}

// RunNow runs a sweep immediately, or returns ErrSweepRunning if the same
// kind is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, kind SweepKind) (SweepResult, error) {
	if _, err := ParseSweepKind(string(kind)); err != nil {
		return SweepResult{Kind: kind}, err
	}
	if !s.acquire(kind) {
		s.metrics.sweep(string(kind), "skipped")
		return SweepResult{Kind: kind}, fmt.Errorf("%w: %s", ErrSweepRunning, kind)
	}
	defer s.release(kind)

	started := s.now()
	result, err := s.runner.Run(ctx, kind)
	if err != nil {
		s.metrics.sweep(string(kind), "failed")
		return result, err
	}
	s.metrics.sweep(string(kind), "completed")
	s.metrics.sweepTook(string(kind), s.now().Sub(started).Seconds())
	return result, nil
}

func (s *Scheduler) acquire(kind SweepKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[kind] == StateRunning {
		return false
	}
	s.states[kind] = StateRunning
	return true
}

func (s *Scheduler) release(kind SweepKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[kind] = StateIdle
}

// Start launches the timers. The interval sweeps only run on trading days
// inside the session; the daily jobs fire once at their configured time.
func (s *Scheduler) Start(ctx context.Context) error {
	summaryAt, err := parseClock(s.cfg.SummaryTime)
	if err != nil {
		return fmt.Errorf("summary_time: %w", err)
	}
	cleanupAt, err := parseClock(s.cfg.CleanupTime)
	if err != nil {
		return fmt.Errorf("cleanup_time: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.every(ctx, SweepIntraday, s.cfg.IntradayInterval)
	s.every(ctx, SweepRisk, s.cfg.RiskInterval)
	s.every(ctx, SweepTechnical, s.cfg.TechnicalInterval)
	s.daily(ctx, SweepSummary, summaryAt, true)
	s.daily(ctx, SweepCleanup, cleanupAt, false)

	s.logger.Info().
		Dur("intraday", s.cfg.IntradayInterval).
		Dur("risk", s.cfg.RiskInterval).
		Dur("technical", s.cfg.TechnicalInterval).
		Str("summary", s.cfg.SummaryTime).
		Str("cleanup", s.cfg.CleanupTime).
		Msg("Scheduler started")
	return nil
}

// Stop cancels the timers and waits for running sweeps to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, kind SweepKind, interval time.Duration) {
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.loop(ctx, kind, ticker.C)
	}()
}

// loop runs kind on every in-session tick. A tick that lands while the sweep
// is still running is dropped rather than queued behind it.
func (s *Scheduler) loop(ctx context.Context, kind SweepKind, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if !provider.InSession(s.now()) {
				continue
			}
			s.tick(ctx, kind)
			select {
			case <-ticks:
				s.metrics.sweep(string(kind), "skipped")
				s.logger.Warn().Str("sweep", string(kind)).Msg("Sweep overran its interval, skipping tick")
			default:
			}
		}
	}
}

func (s *Scheduler) daily(ctx context.Context, kind SweepKind, minute int, tradingDaysOnly bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			next := nextDaily(s.now(), minute)
			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if tradingDaysOnly && !provider.IsTradingDay(s.now()) {
				continue
			}
			s.tick(ctx, kind)
		}
	}()
}

// tick runs a scheduled sweep and logs how it ended
func (s *Scheduler) tick(ctx context.Context, kind SweepKind) {
	result, err := s.RunNow(ctx, kind)
	switch {
	case errors.Is(err, ErrSweepRunning):
		s.logger.Warn().Str("sweep", string(kind)).Msg("Previous sweep still running, skipping tick")
	case err != nil:
		s.logger.Error().Err(err).Str("sweep", string(kind)).Msg("Sweep failed")
	default:
		s.logger.Debug().Str("sweep", string(kind)).Dur("duration", result.Duration).Msg("Scheduled sweep done")
	}
}

// parseClock turns "HH:MM" into minutes after midnight
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// nextDaily returns the next exchange-local time strictly after now at the
// given minute of the day.
func nextDaily(now time.Time, minute int) time.Time {
	local := now.In(provider.Taipei)
	next := time.Date(local.Year(), local.Month(), local.Day(), minute/60, minute%60, 0, 0, provider.Taipei)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
