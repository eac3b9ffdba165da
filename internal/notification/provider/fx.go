package provider

import (
	"github.com/smallbiznis/aquabill/internal/notification/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.sms",
	fx.Provide(
		fx.Annotate(NewSandboxSMS, fx.As(new(domain.SMSSender))),
	),
)
