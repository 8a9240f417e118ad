package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
	"github.com/felixgeelhaar/icesync/pkg/observability"
)

// RoutingKeyRunCompleted is the event published after every run.
const RoutingKeyRunCompleted = "icesync.run.completed"

// TaskSource lists the tasks to score.
type TaskSource interface {
	ListTasks(ctx context.Context, filter string) ([]domain.Task, error)
}

// TaskWriter writes a rescored title and priority back to the task service.
type TaskWriter interface {
	UpdateTask(ctx context.Context, id string, update domain.TaskUpdate) error
}

// TaskService is the remote task-management service.
type TaskService interface {
	TaskSource
	TaskWriter
}

// EventPublisher publishes run summaries to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// ProcessorConfig holds configuration for the score processor.
type ProcessorConfig struct {
	// Filter is the task service filter expression.
	Filter string
	// DryRun computes decisions without writing them back.
	DryRun bool
}

// Processor fetches tasks once per run and reconciles each one in fetch order.
type Processor struct {
	tasks      TaskService
	reconciler *Reconciler
	config     ProcessorConfig
	publisher  EventPublisher
	metrics    observability.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	last *RunSummary
}

// NewProcessor creates a new score processor.
func NewProcessor(tasks TaskService, codec *domain.ScoreCodec, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		tasks:      tasks,
		reconciler: NewReconciler(codec),
		config:     config,
		metrics:    observability.NoopMetrics{},
		logger:     logger,
		now:        time.Now,
	}
}

// WithPublisher sets the publisher that receives run summaries.
func (p *Processor) WithPublisher(publisher EventPublisher) *Processor {
	p.publisher = publisher
	return p
}

// WithMetrics sets the metrics collector.
func (p *Processor) WithMetrics(metrics observability.Metrics) *Processor {
	if metrics != nil {
		p.metrics = metrics
	}
	return p
}

// WithDryRun toggles dry-run mode.
func (p *Processor) WithDryRun(dryRun bool) *Processor {
	p.config.DryRun = dryRun
	return p
}

// Run executes one pass over the filtered task list. Failures never abort the
// run: a failed fetch yields an empty pass and a failed update only affects
// its own task.
func (p *Processor) Run(ctx context.Context) *RunSummary {
	summary := newRunSummary(p.now(), p.config.DryRun)
	logger := p.logger.With("run_id", summary.RunID.String())
	logger.InfoContext(ctx, "processing tasks", "filter", p.config.Filter, "dry_run", p.config.DryRun)

	tasks, err := p.tasks.ListTasks(ctx, p.config.Filter)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching tasks", "error", err)
		summary.FetchError = err.Error()
		p.metrics.Counter(observability.MetricFetchErrors, 1)
		tasks = nil
	}
	summary.Fetched = len(tasks)

	for _, task := range tasks {
		result := p.processTask(ctx, logger, task)
		summary.add(result)
		p.metrics.Counter(observability.MetricTasksProcessed, 1, observability.T("outcome", string(result.Outcome)))
	}

	summary.FinishedAt = p.now()
	p.metrics.Counter(observability.MetricRunsTotal, 1)
	p.metrics.Timing(observability.MetricRunDuration, summary.Duration())
	p.metrics.Gauge(observability.MetricLastRunFetched, float64(summary.Fetched))

	logger.InfoContext(ctx, "tasks processed",
		"fetched", summary.Fetched,
		"updated", summary.Count(OutcomeUpdated),
		"unchanged", summary.Count(OutcomeUnchanged),
		"ineligible", summary.Count(OutcomeIneligible),
		"failed", summary.Count(OutcomeFailed),
		"duration_ms", summary.Duration().Milliseconds(),
	)

	p.publish(ctx, logger, summary)

	p.mu.Lock()
	p.last = summary
	p.mu.Unlock()

	return summary
}

// LastSummary returns the summary of the most recent run, or nil.
func (p *Processor) LastSummary() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// HealthCheck reports the outcome of the most recent run. A run with a failed
// fetch or update degrades the service until a later run succeeds.
func (p *Processor) HealthCheck(ctx context.Context) observability.HealthCheckResult {
	last := p.LastSummary()
	if last == nil {
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusHealthy,
			Message: "no runs yet",
		}
	}

	details := map[string]any{
		"run_id":      last.RunID.String(),
		"finished_at": last.FinishedAt,
		"fetched":     last.Fetched,
		"updated":     last.Count(OutcomeUpdated),
		"failed":      last.Count(OutcomeFailed),
	}
	if last.Failed() {
		msg := "last run had failed updates"
		if last.FetchError != "" {
			msg = "last run could not fetch tasks: " + last.FetchError
		}
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusDegraded,
			Message: msg,
			Details: details,
		}
	}
	return observability.HealthCheckResult{Status: observability.HealthStatusHealthy, Details: details}
}

func (p *Processor) processTask(ctx context.Context, logger *slog.Logger, task domain.Task) TaskResult {
	result := TaskResult{TaskID: task.ID}

	metrics, ok := domain.ExtractMetrics(task.Labels)
	if !ok {
		logger.DebugContext(ctx, "skipping task due to missing labels", "task_id", task.ID, "content", task.Content)
		result.Outcome = OutcomeIneligible
		return result
	}

	score := metrics.Score()
	result.Score = score

	decision := p.reconciler.Reconcile(task, score)
	if decision.Action == ActionNoOp {
		logger.DebugContext(ctx, "skipping task due to unchanged score", "task_id", task.ID, "score", score.String())
		result.Outcome = OutcomeUnchanged
		return result
	}

	result.Content = decision.Content
	result.Priority = decision.Priority

	if p.config.DryRun {
		logger.InfoContext(ctx, "task would be updated",
			"task_id", task.ID,
			"content", decision.Content,
			"priority", int(decision.Priority),
		)
		result.Outcome = OutcomePlanned
		return result
	}

	if err := p.tasks.UpdateTask(ctx, task.ID, decision.Update()); err != nil {
		logger.ErrorContext(ctx, "error updating task", "task_id", task.ID, "error", err)
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result
	}

	logger.InfoContext(ctx, "task updated",
		"task_id", task.ID,
		"content", decision.Content,
		"priority", int(decision.Priority),
	)
	result.Outcome = OutcomeUpdated
	return result
}

func (p *Processor) publish(ctx context.Context, logger *slog.Logger, summary *RunSummary) {
	if p.publisher == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode run summary", "error", err)
		return
	}

	if err := p.publisher.Publish(ctx, RoutingKeyRunCompleted, payload); err != nil {
		logger.WarnContext(ctx, "failed to publish run summary", "error", err)
		return
	}
	p.metrics.Counter(observability.MetricEventsPublished, 1)
}
