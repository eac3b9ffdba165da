package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRelayer struct {
	mu     sync.Mutex
	calls  int
	grace  time.Duration
	limit  int
	role   actor.Role
	relay  func(ctx context.Context) (int, error)
	called chan struct{}
}

func (f *fakeRelayer) RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	f.mu.Lock()
	f.calls++
	f.grace = grace
	f.limit = limit
	if a, ok := actor.FromContext(ctx); ok {
		f.role = a.Role
	}
	f.mu.Unlock()
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	if f.relay != nil {
		return f.relay(ctx)
	}
	return 0, nil
}

func newTestScheduler(t *testing.T, relayer Relayer, cfg Config) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{
		ServiceName: "aquabill",
		Environment: "test",
	})
	s, err := New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)),
		Relayer: relayer,
		Config:  cfg,
		Metrics: metrics,
	})
	require.NoError(t, err)
	return s, registry
}

func TestNewRequiresRelayer(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{Log: zap.NewNop(), GenID: node, Clock: clock.SystemClock{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{GracePeriod: -time.Second}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = Config{RunInterval: time.Second, GracePeriod: 0, BatchSize: 5}.withDefaults()
	assert.Equal(t, time.Second, cfg.RunInterval)
	assert.Equal(t, time.Duration(0), cfg.GracePeriod)
	assert.Equal(t, 5, cfg.BatchSize)
}

func TestRunOnceRelaysWithConfiguredWindow(t *testing.T) {
	relayer := &fakeRelayer{relay: func(context.Context) (int, error) { return 3, nil }}
	s, registry := newTestScheduler(t, relayer, Config{GracePeriod: 2 * time.Minute, BatchSize: 25})

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, relayer.calls)
	assert.Equal(t, 2*time.Minute, relayer.grace)
	assert.Equal(t, 25, relayer.limit)
	assert.Equal(t, actor.RoleSystem, relayer.role)

	assert.Equal(t, float64(1), counterValue(t, registry, "aquabill_scheduler_job_runs_total", map[string]string{
		"service": "aquabill", "env": "test", "job": JobOutboxRelay,
	}))
	assert.Equal(t, float64(3), counterValue(t, registry, "aquabill_scheduler_batch_processed_total", map[string]string{
		"service": "aquabill", "env": "test", "job": JobOutboxRelay, "resource": "billing_events",
	}))
}

func TestRunOnceReturnsRelayError(t *testing.T) {
	boom := errors.New("dispatcher unavailable")
	relayer := &fakeRelayer{relay: func(context.Context) (int, error) { return 1, boom }}
	s, registry := newTestScheduler(t, relayer, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobOutboxRelay)

	assert.Equal(t, float64(1), counterValue(t, registry, "aquabill_scheduler_job_errors_total", map[string]string{
		"service": "aquabill", "env": "test", "job": JobOutboxRelay, "reason": obsmetrics.SchedulerJobReasonUnknown,
	}))
	assert.Equal(t, float64(1), counterValue(t, registry, "aquabill_scheduler_batch_processed_total", map[string]string{
		"service": "aquabill", "env": "test", "job": JobOutboxRelay, "resource": "billing_events",
	}))
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	relayer := &fakeRelayer{}
	s, registry := newTestScheduler(t, relayer, Config{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), counterValue(t, registry, "aquabill_scheduler_job_timeouts_total", map[string]string{
		"service": "aquabill", "env": "test", "job": "timeout_job",
	}))
	assert.Equal(t, float64(1), counterValue(t, registry, "aquabill_scheduler_job_errors_total", map[string]string{
		"service": "aquabill", "env": "test", "job": "timeout_job", "reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	relayer := &fakeRelayer{called: make(chan struct{}, 1)}
	s, _ := newTestScheduler(t, relayer, Config{RunInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	select {
	case <-relayer.called:
	case <-time.After(5 * time.Second):
		t.Fatal("relay job did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
