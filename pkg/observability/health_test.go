package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/ai-agentic-browser/eventbus/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealthAggregatesOverallStatus(t *testing.T) {
	hc := NewHealthChecker(NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"}))
	hc.RegisterCheck("healthy-one", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusHealthy}
	})
	hc.RegisterCheck("degraded-one", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusDegraded}
	})

	results := hc.CheckHealth(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, HealthStatusDegraded, hc.GetOverallStatus(results), "degraded must outrank healthy but not outrank unhealthy")

	hc.RegisterCheck("unhealthy-one", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusUnhealthy}
	})
	results = hc.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, hc.GetOverallStatus(results))
}

func TestUnregisterCheckRemovesIt(t *testing.T) {
	hc := NewHealthChecker(NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"}))
	hc.RegisterCheck("temp", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusHealthy}
	})
	hc.UnregisterCheck("temp")

	results := hc.CheckHealth(context.Background())
	assert.Empty(t, results)
	assert.Equal(t, HealthStatusUnknown, hc.GetOverallStatus(results))
}

func TestExecuteCheckRecoversPanic(t *testing.T) {
	hc := NewHealthChecker(NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"}))
	hc.RegisterCheck("panics", func(ctx context.Context) HealthCheckResult {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		hc.CheckHealth(context.Background())
	})
}

func TestAdapterSessionHealthCheckReflectsPingResult(t *testing.T) {
	healthy := AdapterSessionHealthCheck("okx", func(ctx context.Context) error { return nil })
	assert.Equal(t, HealthStatusHealthy, healthy(context.Background()).Status)

	unhealthy := AdapterSessionHealthCheck("binance", func(ctx context.Context) error { return errors.New("dial failed") })
	result := unhealthy(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
	assert.Equal(t, "dial failed", result.Error)
}

func TestJournalWriterHealthCheckFlagsStalledSequence(t *testing.T) {
	seq := uint64(1)
	check := JournalWriterHealthCheck("orders", func() (uint64, error) { return seq, nil })

	first := check(context.Background())
	assert.Equal(t, HealthStatusHealthy, first.Status, "the first poll has no prior sequence to compare against")

	second := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, second.Status, "an unchanged sequence between polls means the writer stalled")

	seq = 2
	third := check(context.Background())
	assert.Equal(t, HealthStatusHealthy, third.Status)
}

func TestJournalWriterHealthCheckUnhealthyOnStatError(t *testing.T) {
	check := JournalWriterHealthCheck("orders", func() (uint64, error) { return 0, errors.New("unmapped") })
	result := check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
}

func TestSnapshotIncludesSystemInfo(t *testing.T) {
	hc := NewHealthChecker(NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"}))
	hc.RegisterCheck("ok", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusHealthy}
	})

	report := hc.Snapshot(context.Background())
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.Greater(t, report.System.NumCPU, 0)
	assert.NotZero(t, report.Timestamp)
}
