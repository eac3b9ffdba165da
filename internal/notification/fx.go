package notification

import (
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/notification/provider"
	"github.com/smallbiznis/aquabill/internal/notification/repository"
	"github.com/smallbiznis/aquabill/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	provider.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		fx.Annotate(service.NewDispatcher, fx.As(new(events.Dispatcher))),
	),
)
