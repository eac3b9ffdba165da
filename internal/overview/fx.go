package overview

import (
	"github.com/smallbiznis/aquabill/internal/overview/service"
	"go.uber.org/fx"
)

var Module = fx.Module("overview.service",
	fx.Provide(service.NewService),
)
