package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the household already has a reading for the month.
	Insert(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Record, error)
	FindForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, readingMonth string) (*Record, error)
	LockForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, readingMonth string) (*Record, error)
	// Transition moves a record from one of from to to and reports whether it did.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListUsageFilter, page pagination.Pagination) ([]*Record, error)
}
