package scheduler

import (
	"context"

	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(
		ProvideConfig,
		func(emitter *events.Emitter) Relayer { return emitter },
		New,
	),
	fx.Invoke(StartRelay),
)

// StartRelay runs the outbox relay loop for the lifetime of the app when
// RELAY_ENABLED is set. Stop waits for the in-flight run to return.
func StartRelay(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, sched *Scheduler) {
	if !cfg.Relay.Enabled {
		log.Info("outbox relay disabled")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
