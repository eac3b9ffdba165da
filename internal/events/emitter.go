package events

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/clock"
	obsmetrics "github.com/smallbiznis/aquabill/internal/observability/metrics"
	"github.com/smallbiznis/aquabill/pkg/log/ctxlogger"
	"github.com/smallbiznis/aquabill/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Envelope is a stored event handed to a Dispatcher.
type Envelope struct {
	ID        snowflake.ID
	Type      string
	Payload   map[string]any
	CreatedAt time.Time
}

// Dispatcher delivers events to their consumers. Delivery is at least once,
// so implementations must tolerate seeing the same envelope twice.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}

type EmitterParams struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Dispatcher   Dispatcher
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	RelayMetrics *telemetry.Metrics  `optional:"true"`
}

// Emitter moves outbox rows to the Dispatcher and marks them published.
type Emitter struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	dispatcher   Dispatcher
	obsMetrics   *obsmetrics.Metrics
	relayMetrics *telemetry.Metrics
}

func NewEmitter(p EmitterParams) *Emitter {
	return &Emitter{
		db:           p.DB,
		log:          p.Log.Named("events.emitter"),
		clock:        p.Clock,
		dispatcher:   p.Dispatcher,
		obsMetrics:   p.ObsMetrics,
		relayMetrics: p.RelayMetrics,
	}
}

// Deliver dispatches events whose transaction has committed. It never
// returns an error: a failed event is logged and left for RelayPending.
func (e *Emitter) Deliver(ctx context.Context, ids ...snowflake.ID) {
	if e == nil {
		return
	}
	for _, id := range ids {
		if id == 0 {
			continue
		}
		row, err := e.load(ctx, id)
		if err != nil {
			e.logger(ctx).Warn("failed to load billing event", zap.String("event_id", id.String()), zap.Error(err))
			continue
		}
		if row == nil || row.Published {
			continue
		}
		_ = e.dispatch(ctx, *row)
	}
}

// RelayPending redelivers events still unpublished after grace has elapsed
// and returns how many were delivered.
func (e *Emitter) RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	cutoff := e.clock.Now().Add(-grace)

	var rows []BillingEvent
	if err := e.db.WithContext(ctx).
		Where("published = ? AND created_at <= ?", false, cutoff).
		Order("created_at asc").
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return 0, err
	}

	var (
		jobErr    error
		delivered int
	)
	for _, row := range rows {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := e.dispatch(ctx, row); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		delivered++
	}

	status := "ok"
	if jobErr != nil {
		status = "error"
	}
	e.relayMetrics.RecordOutboxBatch(status, delivered, time.Since(start))

	var backlog int64
	if err := e.db.WithContext(ctx).Model(&BillingEvent{}).Where("published = ?", false).Count(&backlog).Error; err == nil {
		e.relayMetrics.SetOutboxBacklog(float64(backlog))
	}

	return delivered, jobErr
}

func (e *Emitter) dispatch(ctx context.Context, row BillingEvent) error {
	start := time.Now()
	err := e.dispatcher.Dispatch(ctx, Envelope{
		ID:        row.ID,
		Type:      row.EventType,
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt,
	})
	if err != nil {
		e.relayMetrics.RecordHandler(row.EventType, "error", time.Since(start))
		e.obsMetrics.RecordDispatchFailure(ctx, row.EventType)
		e.logger(ctx).Warn("event dispatch failed",
			zap.String("event_id", row.ID.String()),
			zap.String("event_type", row.EventType),
			zap.Error(err),
		)
		return err
	}
	e.relayMetrics.RecordHandler(row.EventType, "ok", time.Since(start))

	if err := e.markPublished(ctx, row.ID); err != nil {
		e.logger(ctx).Warn("failed to mark billing event published",
			zap.String("event_id", row.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (e *Emitter) load(ctx context.Context, id snowflake.ID) (*BillingEvent, error) {
	var row BillingEvent
	err := e.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (e *Emitter) markPublished(ctx context.Context, id snowflake.ID) error {
	now := e.clock.Now()
	return e.db.WithContext(ctx).
		Model(&BillingEvent{}).
		Where("id = ? AND published = ?", id, false).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
		}).Error
}

func (e *Emitter) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, e.log)
}
