package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/internal/clock"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	"github.com/smallbiznis/aquabill/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOutboxRelay = "outbox_relay"

	resourceBillingEvents = "billing_events"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

// Relayer redelivers outbox events that were never marked published.
type Relayer interface {
	RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Relayer Relayer
	Config  Config                       `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	relayer Relayer
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Relayer == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		relayer: p.Relayer,
		metrics: metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = actor.WithActor(ctx, actor.System)
	run := s.newJobRun(name, batchSize)
	ctx = correlation.WithID(ctx, run.runID)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobOutboxRelay, s.cfg.BatchSize, s.cfg.JobTimeout, s.OutboxRelayJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OutboxRelayJob pushes events that missed their post-commit delivery
// through the dispatcher again. Consumers are idempotent per event, so a
// redelivered event has no further effect.
func (s *Scheduler) OutboxRelayJob(ctx context.Context, run *jobRun) error {
	delivered, err := s.relayer.RelayPending(ctx, s.cfg.GracePeriod, s.cfg.BatchSize)
	run.AddProcessed(delivered)
	s.metrics.AddBatchProcessed(JobOutboxRelay, resourceBillingEvents, delivered)
	if err != nil {
		s.logSchedulerError(ctx, run, "outbox relay failed", err,
			zap.Int("delivered", delivered),
		)
	}
	return err
}
