package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/icesync/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler captures scheduled runs so tests decide when timers fire.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (s *fakeScheduler) afterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
}

func (s *fakeScheduler) fire(t *testing.T, i int) {
	t.Helper()
	s.mu.Lock()
	require.Greater(t, len(s.funcs), i)
	f := s.funcs[i]
	s.mu.Unlock()
	f()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.funcs)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestDebouncer(minInterval time.Duration, run RunFunc) (*Debouncer, *fakeClock, *fakeScheduler) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sched := &fakeScheduler{}
	d := NewDebouncer(minInterval, run, nil)
	d.now = clock.Now
	d.afterFunc = sched.afterFunc
	return d, clock, sched
}

func TestDebouncer_BurstCollapsesToOneRun(t *testing.T) {
	var runs atomic.Int32
	d, clock, sched := newTestDebouncer(5*time.Second, func(ctx context.Context) { runs.Add(1) })
	start := clock.Now()

	adm, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.True(t, adm.Admitted)

	clock.Set(start.Add(1000 * time.Millisecond))
	adm, err = d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.False(t, adm.Admitted)

	// The deferred run fires at admission + MinInterval.
	require.Equal(t, 1, sched.count())
	assert.Equal(t, 5*time.Second, sched.delays[0])
	clock.Set(start.Add(5 * time.Second))
	sched.fire(t, 0)
	assert.Equal(t, int32(1), runs.Load())

	clock.Set(start.Add(6000 * time.Millisecond))
	adm, err = d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.True(t, adm.Admitted)
	assert.Equal(t, 2, sched.count())
}

func TestDebouncer_RejectsWhilePending(t *testing.T) {
	d, clock, sched := newTestDebouncer(5*time.Second, func(ctx context.Context) {})
	start := clock.Now()

	adm, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	require.True(t, adm.Admitted)

	// Long after the interval, but the admitted run has not completed yet.
	clock.Set(start.Add(time.Hour))
	adm, err = d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.False(t, adm.Admitted)
	assert.Equal(t, ReasonAlreadyProcessing, adm.Reason)
	assert.True(t, d.State().Processing)
	assert.Equal(t, 1, sched.count())
}

func TestDebouncer_RejectsTooSoon(t *testing.T) {
	d, clock, sched := newTestDebouncer(5*time.Second, func(ctx context.Context) {})
	start := clock.Now()

	_, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	sched.fire(t, 0)
	assert.False(t, d.State().Processing)

	clock.Set(start.Add(4999 * time.Millisecond))
	adm, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rejected(ReasonTooSoon), adm)

	clock.Set(start.Add(5 * time.Second))
	adm, err = d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm)
	assert.Equal(t, start.Add(5*time.Second), d.State().LastProcessedAt)
}

func TestDebouncer_ReleasesAfterPanic(t *testing.T) {
	d, clock, sched := newTestDebouncer(time.Second, func(ctx context.Context) {
		panic("boom")
	})

	_, err := d.OnTrigger(context.Background())
	require.NoError(t, err)

	assert.NotPanics(t, func() { sched.fire(t, 0) })
	assert.False(t, d.State().Processing)

	clock.Set(clock.Now().Add(time.Second))
	adm, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.True(t, adm.Admitted)
}

func TestDebouncer_SchedulingPanicReleasesFlag(t *testing.T) {
	d, _, _ := newTestDebouncer(time.Second, func(ctx context.Context) {})
	d.afterFunc = func(time.Duration, func()) { panic("timer unavailable") }

	adm, err := d.OnTrigger(context.Background())
	require.Error(t, err)
	assert.False(t, adm.Admitted)
	assert.False(t, d.State().Processing)

	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDebouncer_RunKeepsContextValues(t *testing.T) {
	var got string
	d, _, sched := newTestDebouncer(time.Second, func(ctx context.Context) {
		got = observability.CorrelationIDFromContext(ctx)
		assert.NoError(t, ctx.Err())
	})

	ctx, cancel := context.WithCancel(observability.WithCorrelationID(context.Background(), "corr-1"))
	_, err := d.OnTrigger(ctx)
	require.NoError(t, err)
	cancel()

	sched.fire(t, 0)
	assert.Equal(t, "corr-1", got)
}

func TestDebouncer_Metrics(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	d, _, _ := newTestDebouncer(time.Second, func(ctx context.Context) {})
	d.WithMetrics(metrics)

	_, _ = d.OnTrigger(context.Background())
	_, _ = d.OnTrigger(context.Background())
	_, _ = d.OnTrigger(context.Background())

	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricTriggersAdmitted))
	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricTriggersRejected,
		observability.T("reason", string(ReasonAlreadyProcessing))))
}

func TestDebouncer_Shutdown(t *testing.T) {
	t.Run("waits for pending run", func(t *testing.T) {
		var runs atomic.Int32
		d := NewDebouncer(20*time.Millisecond, func(ctx context.Context) { runs.Add(1) }, nil)

		adm, err := d.OnTrigger(context.Background())
		require.NoError(t, err)
		require.True(t, adm.Admitted)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, d.Shutdown(ctx))
		assert.Equal(t, int32(1), runs.Load())

		_, err = d.OnTrigger(context.Background())
		assert.ErrorIs(t, err, ErrStopped)
	})

	t.Run("honours context deadline", func(t *testing.T) {
		d, _, _ := newTestDebouncer(time.Hour, func(ctx context.Context) {})
		_, err := d.OnTrigger(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	})
}

func TestDebouncer_RealTimer(t *testing.T) {
	done := make(chan time.Time, 2)
	d := NewDebouncer(30*time.Millisecond, func(ctx context.Context) { done <- time.Now() }, nil)

	admittedAt := time.Now()
	adm, err := d.OnTrigger(context.Background())
	require.NoError(t, err)
	require.True(t, adm.Admitted)

	for i := 0; i < 5; i++ {
		adm, err := d.OnTrigger(context.Background())
		require.NoError(t, err)
		assert.False(t, adm.Admitted)
	}

	select {
	case ranAt := <-done:
		assert.GreaterOrEqual(t, ranAt.Sub(admittedAt), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Len(t, done, 0)
}

func TestDebouncer_HealthCheck(t *testing.T) {
	d, _, sched := newTestDebouncer(5*time.Second, func(ctx context.Context) {})

	res := d.HealthCheck(context.Background())
	assert.Equal(t, observability.HealthStatusHealthy, res.Status)
	assert.Equal(t, false, res.Details["processing"])
	assert.NotContains(t, res.Details, "last_processed_at")

	_, err := d.OnTrigger(context.Background())
	require.NoError(t, err)

	res = d.HealthCheck(context.Background())
	assert.Equal(t, true, res.Details["processing"])
	assert.Contains(t, res.Details, "last_processed_at")

	sched.fire(t, 0)
	require.NoError(t, d.Shutdown(context.Background()))

	res = d.HealthCheck(context.Background())
	assert.Equal(t, observability.HealthStatusUnhealthy, res.Status)
}
