package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	billdomain "github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/internal/events"
	householddomain "github.com/smallbiznis/aquabill/internal/household/domain"
	notificationdomain "github.com/smallbiznis/aquabill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/aquabill/internal/payment/domain"
	sequencedomain "github.com/smallbiznis/aquabill/internal/sequence/domain"
	tariffdomain "github.com/smallbiznis/aquabill/internal/tariff/domain"
	usagedomain "github.com/smallbiznis/aquabill/internal/usage/domain"
	userdomain "github.com/smallbiznis/aquabill/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the engine.
func Models() []any {
	return []any{
		&sequencedomain.Counter{},
		&userdomain.User{},
		&householddomain.Household{},
		&tariffdomain.Rate{},
		&usagedomain.Record{},
		&billdomain.Bill{},
		&paymentdomain.Payment{},
		&events.BillingEvent{},
		&notificationdomain.SMSLog{},
		&notificationdomain.Notification{},
	}
}

// AutoMigrate builds the schema from the gorm models. It serves sqlite, mysql
// and tests; postgres uses RunMigrations.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		// mysql has no partial indexes; the tariff service keeps one active row there.
		if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_tariff_rates_single_active ON tariff_rates(is_active) WHERE is_active`).Error; err != nil {
			return fmt.Errorf("single active tariff index: %w", err)
		}
	}
	return nil
}
