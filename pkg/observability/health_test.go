package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(ctx context.Context) HealthCheckResult {
	return HealthCheckResult{Status: HealthStatusHealthy}
}

func TestHealthRegistry(t *testing.T) {
	t.Run("no checks is healthy", func(t *testing.T) {
		r := NewHealthRegistry()

		h := r.GetOverallHealth(context.Background())
		assert.Equal(t, HealthStatusHealthy, h.Status)
		assert.Empty(t, h.Checks)
	})

	t.Run("worst status wins", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("a", healthy)
		r.Register("b", func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusDegraded}
		})

		h := r.GetOverallHealth(context.Background())
		assert.Equal(t, HealthStatusDegraded, h.Status)
		require.Len(t, h.Checks, 2)
		assert.False(t, h.Checks["a"].Timestamp.IsZero())

		r.Register("c", func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusUnhealthy}
		})
		assert.Equal(t, HealthStatusUnhealthy, r.GetOverallHealth(context.Background()).Status)
	})

	t.Run("register replaces", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("a", func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusUnhealthy}
		})
		r.Register("a", healthy)

		assert.Equal(t, HealthStatusHealthy, r.GetOverallHealth(context.Background()).Status)
	})
}

func TestPingCheckers(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return errors.New("refused") }

	assert.Equal(t, HealthStatusHealthy, RedisHealthChecker(ok)(context.Background()).Status)

	res := RedisHealthChecker(fail)(context.Background())
	assert.Equal(t, HealthStatusDegraded, res.Status)
	assert.Equal(t, "redis connection failed: refused", res.Message)

	res = RabbitMQHealthChecker(fail)(context.Background())
	assert.Equal(t, HealthStatusDegraded, res.Status)
	assert.Contains(t, res.Message, "rabbitmq")
}

func TestCircuitBreakerHealthChecker(t *testing.T) {
	tests := []struct {
		state  string
		status HealthStatus
	}{
		{"closed", HealthStatusHealthy},
		{"half-open", HealthStatusHealthy},
		{"open", HealthStatusDegraded},
		{"disabled", HealthStatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			res := CircuitBreakerHealthChecker(func() string { return tt.state })(context.Background())
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.state, res.Details["state"])
		})
	}
}
