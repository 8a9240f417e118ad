package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/icesync/pkg/observability"
)

// ErrStopped is returned by OnTrigger after Shutdown.
var ErrStopped = errors.New("debouncer stopped")

// RunFunc is the work started for an admitted trigger.
type RunFunc func(ctx context.Context)

// Debouncer admits triggers through a RunController and starts the run
// minInterval after admission. Triggers arriving while a run is pending or
// active, or within minInterval of the last admission, are dropped. Admitted
// runs are never cancelled.
type Debouncer struct {
	controller *RunController
	run        RunFunc
	delay      time.Duration
	logger     *slog.Logger
	metrics    observability.Metrics

	now       func() time.Time
	afterFunc func(time.Duration, func())

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDebouncer creates a debouncer that runs run at most once per minInterval.
func NewDebouncer(minInterval time.Duration, run RunFunc, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		controller: NewRunController(minInterval),
		run:        run,
		delay:      minInterval,
		logger:     logger,
		metrics:    observability.NoopMetrics{},
		now:        time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// WithMetrics sets the metrics collector.
func (d *Debouncer) WithMetrics(metrics observability.Metrics) *Debouncer {
	if metrics != nil {
		d.metrics = metrics
	}
	return d
}

// OnTrigger handles one trigger. Rejections are not errors; an error means
// the trigger could not be handled at all.
func (d *Debouncer) OnTrigger(ctx context.Context) (adm Admission, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return Admission{}, ErrStopped
	}

	adm = d.controller.TryAdmit(d.now())
	if !adm.Admitted {
		d.logger.InfoContext(ctx, "skipping processing to avoid flooding", "reason", string(adm.Reason))
		d.metrics.Counter(observability.MetricTriggersRejected, 1, observability.T("reason", string(adm.Reason)))
		return adm, nil
	}

	// The flag must not stay taken if scheduling blows up.
	scheduled := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule run: %v", r)
		}
		if !scheduled {
			d.wg.Done()
			d.controller.Release()
			adm = Admission{}
		}
	}()

	d.wg.Add(1)
	runCtx := context.WithoutCancel(ctx)
	d.afterFunc(d.delay, func() { d.execute(runCtx) })
	scheduled = true

	d.logger.InfoContext(ctx, "webhook received, run scheduled", "delay", d.delay)
	d.metrics.Counter(observability.MetricTriggersAdmitted, 1)
	return adm, nil
}

func (d *Debouncer) execute(ctx context.Context) {
	defer d.wg.Done()
	defer d.controller.Release()
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "error processing tasks", "panic", fmt.Sprint(r))
		}
	}()

	d.logger.InfoContext(ctx, "processing tasks now")
	d.run(ctx)
}

// State returns the controller state.
func (d *Debouncer) State() State {
	return d.controller.State()
}

// Shutdown stops admitting triggers and waits for pending and active runs.
func (d *Debouncer) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck reports the controller state. A stopped debouncer no longer
// accepts webhooks and is reported unhealthy.
func (d *Debouncer) HealthCheck(ctx context.Context) observability.HealthCheckResult {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()

	state := d.State()
	details := map[string]any{
		"processing":   state.Processing,
		"min_interval": d.delay.String(),
	}
	if !state.LastProcessedAt.IsZero() {
		details["last_processed_at"] = state.LastProcessedAt
	}

	if stopped {
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusUnhealthy,
			Message: "debouncer stopped",
			Details: details,
		}
	}
	return observability.HealthCheckResult{Status: observability.HealthStatusHealthy, Details: details}
}
