// Package app wires icesync's components together.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/icesync/adapter/api"
	"github.com/felixgeelhaar/icesync/internal/scoring/application"
	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
	"github.com/felixgeelhaar/icesync/internal/scoring/infrastructure/todoist"
	"github.com/felixgeelhaar/icesync/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/icesync/internal/trigger"
	"github.com/felixgeelhaar/icesync/pkg/config"
	"github.com/felixgeelhaar/icesync/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry

	Codec     *domain.ScoreCodec
	Todoist   *todoist.Client
	Publisher eventbus.Publisher
	Processor *application.Processor
	Debouncer *trigger.Debouncer
	Server    *api.Server
}

// connectPublisher is replaced in tests to capture events below the envelope.
var connectPublisher = newPublisher

// NewContainer builds the container. The Todoist token must be set.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := domain.NewScoreCodec(cfg.ScoreTag)
	if err != nil {
		return nil, err
	}

	client, err := todoist.NewClientWithBaseURL(cfg.TodoistAPIToken, logger, cfg.TodoistAPIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Todoist client: %w", err)
	}
	client.WithTimeout(cfg.TodoistTimeout).WithBreaker(breakerConfig(cfg))

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
		Codec:   codec,
		Todoist: client,
	}

	publisher, err := connectPublisher(ctx, cfg, logger, c.Health)
	if err != nil {
		return nil, err
	}
	c.Publisher = eventbus.NewEnvelopePublisher(publisher)

	c.Processor = application.NewProcessor(client, codec, application.ProcessorConfig{Filter: cfg.TodoistFilter}, logger).
		WithPublisher(c.Publisher).
		WithMetrics(c.Metrics)

	c.Debouncer = trigger.NewDebouncer(cfg.MinInterval, func(ctx context.Context) {
		c.Processor.Run(ctx)
	}, logger).WithMetrics(c.Metrics)

	c.Health.Register("debouncer", c.Debouncer.HealthCheck)
	c.Health.Register("todoist", observability.CircuitBreakerHealthChecker(client.BreakerState))
	c.Health.Register("last_run", c.Processor.HealthCheck)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.Addr()
	c.Server = api.NewServer(serverCfg, c.Debouncer, c.Health, c.Metrics, logger)

	logger.Info("container initialized",
		"score_tag", codec.Tag(),
		"min_interval", cfg.MinInterval,
		"events_backend", cfg.EventsBackend,
	)
	return c, nil
}

// Close releases broker connections.
func (c *Container) Close() error {
	if c.Publisher != nil {
		return c.Publisher.Close()
	}
	return nil
}

func breakerConfig(cfg *config.Config) todoist.BreakerConfig {
	bc := todoist.DefaultBreakerConfig()
	bc.Enabled = cfg.BreakerEnabled
	if cfg.BreakerMaxRequests > 0 {
		bc.MaxRequests = uint32(cfg.BreakerMaxRequests)
	}
	if cfg.BreakerInterval > 0 {
		bc.Interval = cfg.BreakerInterval
	}
	if cfg.BreakerTimeout > 0 {
		bc.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerFailureThreshold > 0 {
		bc.FailureThreshold = uint32(cfg.BreakerFailureThreshold)
	}
	return bc
}

// newPublisher connects the configured event backend. In development an
// unreachable broker falls back to the noop publisher.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger, health *observability.HealthRegistry) (eventbus.Publisher, error) {
	var (
		publisher eventbus.Publisher
		err       error
	)

	switch cfg.EventsBackend {
	case config.EventsBackendRabbitMQ:
		var p *eventbus.RabbitMQPublisher
		if p, err = eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsChannel, logger); err == nil {
			health.Register("rabbitmq", observability.RabbitMQHealthChecker(p.Ping))
			publisher = p
		}
	case config.EventsBackendRedis:
		var p *eventbus.RedisPublisher
		if p, err = eventbus.NewRedisPublisher(ctx, cfg.RedisURL, cfg.EventsChannel, logger); err == nil {
			health.Register("redis", observability.RedisHealthChecker(p.Ping))
			publisher = p
		}
	default:
		return eventbus.NewNoopPublisher(logger), nil
	}

	if err != nil {
		if !cfg.IsDevelopment() {
			return nil, err
		}
		logger.Warn("event broker not available, using noop publisher",
			"backend", cfg.EventsBackend,
			"error", err,
		)
		return eventbus.NewNoopPublisher(logger), nil
	}
	return publisher, nil
}
