package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/bill"
	"github.com/smallbiznis/aquabill/internal/clock"
	"github.com/smallbiznis/aquabill/internal/config"
	"github.com/smallbiznis/aquabill/internal/events"
	"github.com/smallbiznis/aquabill/internal/household"
	"github.com/smallbiznis/aquabill/internal/lock"
	"github.com/smallbiznis/aquabill/internal/migration"
	"github.com/smallbiznis/aquabill/internal/notification"
	"github.com/smallbiznis/aquabill/internal/observability"
	"github.com/smallbiznis/aquabill/internal/overview"
	"github.com/smallbiznis/aquabill/internal/payment"
	"github.com/smallbiznis/aquabill/internal/scheduler"
	"github.com/smallbiznis/aquabill/internal/sequence"
	"github.com/smallbiznis/aquabill/internal/tariff"
	"github.com/smallbiznis/aquabill/internal/usage"
	"github.com/smallbiznis/aquabill/internal/user"
	"github.com/smallbiznis/aquabill/pkg/db"
	pkglog "github.com/smallbiznis/aquabill/pkg/log"
	"github.com/smallbiznis/aquabill/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		pkglog.Module,
		telemetry.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Functional Domains
		sequence.Module,
		user.Module,
		household.Module,
		tariff.Module,
		usage.Module,
		bill.Module,
		payment.Module,
		notification.Module,
		overview.Module,
		events.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
