package services

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every run until release is closed
type blockingRunner struct {
	started chan SweepKind
	release chan struct{}
	err     error

	mu   sync.Mutex
	runs int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan SweepKind, 8), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, kind SweepKind) (SweepResult, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	r.started <- kind
	<-r.release
	return SweepResult{Kind: kind}, r.err
}

func TestSchedulerSingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	sched := NewScheduler(runner, config.SchedulerConfig{}, nopLogger(), NewMetrics())

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunNow(context.Background(), SweepIntraday)
		done <- err
	}()
	require.Equal(t, SweepIntraday, <-runner.started)
	assert.Equal(t, StateRunning, sched.State(SweepIntraday))

	_, err := sched.RunNow(context.Background(), SweepIntraday)
	assert.ErrorIs(t, err, ErrSweepRunning)

	// other kinds are independent
	go func() { _, _ = sched.RunNow(context.Background(), SweepRisk) }()
	require.Equal(t, SweepRisk, <-runner.started)

	close(runner.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, sched.State(SweepIntraday))
	assert.Equal(t, 2, runner.runs)
}

func TestSchedulerRunNowErrors(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("database is locked")
	close(runner.release)
	sched := NewScheduler(runner, config.SchedulerConfig{}, nopLogger(), nil)

	_, err := sched.RunNow(context.Background(), SweepKind("weekly"))
	assert.ErrorIs(t, err, ErrUnknownSweep)

	_, err = sched.RunNow(context.Background(), SweepCleanup)
	assert.EqualError(t, err, "database is locked")
	assert.Equal(t, StateIdle, sched.State(SweepCleanup), "state is released after a failure")
}

func TestSchedulerStartStop(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	cfg := config.SchedulerConfig{
		IntradayInterval:  time.Hour,
		RiskInterval:      time.Hour,
		TechnicalInterval: time.Hour,
		SummaryTime:       "13:45",
		CleanupTime:       "02:00",
	}
	sched := NewScheduler(runner, cfg, nopLogger(), nil)
	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
	assert.Zero(t, runner.runs)

	cfg.SummaryTime = "25:99"
	assert.Error(t, NewScheduler(runner, cfg, nopLogger(), nil).Start(context.Background()))
}

func TestSchedulerDropsTicksDuringSweep(t *testing.T) {
	runner := newBlockingRunner()
	metrics := NewMetrics()
	sched := NewScheduler(runner, config.SchedulerConfig{}, nopLogger(), metrics)
	sched.now = func() time.Time { return inSession }

	ticks := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.loop(ctx, SweepIntraday, ticks)
		close(done)
	}()

	ticks <- inSession
	require.Equal(t, SweepIntraday, <-runner.started)
	// fires while the first run is still going
	ticks <- inSession
	close(runner.release)

	ticks <- inSession
	require.Equal(t, SweepIntraday, <-runner.started)
	assert.Zero(t, len(ticks), "second run came from the later tick")

	cancel()
	<-done
	assert.Equal(t, 2, runner.runs)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `stockalert_sweeps_total{result="skipped",sweep="intraday"} 1`)
}

func TestSchedulerIgnoresTicksOutsideSession(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	sched := NewScheduler(runner, config.SchedulerConfig{}, nopLogger(), nil)
	sched.now = func() time.Time { return afterClose }

	ticks := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.loop(ctx, SweepRisk, ticks)
		close(done)
	}()
	ticks <- afterClose
	ticks <- afterClose
	cancel()
	<-done
	assert.Zero(t, runner.runs)
}

func TestParseClock(t *testing.T) {
	m, err := parseClock("13:45")
	require.NoError(t, err)
	assert.Equal(t, 13*60+45, m)

	_, err = parseClock("1:45pm")
	assert.Error(t, err)
}

func TestNextDaily(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		at   int
		want time.Time
	}{
		{"later today", inSession, 13*60 + 45, time.Date(2026, 10, 19, 13, 45, 0, 0, provider.Taipei)},
		{"already passed", afterClose, 13*60 + 45, time.Date(2026, 10, 20, 13, 45, 0, 0, provider.Taipei)},
		{"exactly now", time.Date(2026, 10, 19, 2, 0, 0, 0, provider.Taipei), 120, time.Date(2026, 10, 20, 2, 0, 0, 0, provider.Taipei)},
		{"utc input", time.Date(2026, 10, 18, 17, 0, 0, 0, time.UTC), 120, time.Date(2026, 10, 19, 2, 0, 0, 0, provider.Taipei)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDaily(tt.now, tt.at)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestSweepStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.sweep("intraday", "completed")
	m.alertFired("PRICE_CHANGE")
	m.delivered(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `stockalert_sweeps_total{result="completed",sweep="intraday"} 1`)
	assert.Contains(t, string(body), `stockalert_alerts_fired_total{condition="PRICE_CHANGE"} 1`)
	assert.Contains(t, string(body), `stockalert_deliveries_total{result="failed"} 1`)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.quoteResolved("tse-live") })
}
