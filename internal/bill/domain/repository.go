package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the household already has a bill for the period.
	Insert(ctx context.Context, db *gorm.DB, bill *Bill) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bill, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bill, error)
	FindByNumber(ctx context.Context, db *gorm.DB, billNumber string) (*Bill, error)
	FindForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, billingPeriod string) (*Bill, error)
	// Transition moves a bill from one of from to to and reports whether it did.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, now time.Time) (bool, error)
	// MarkPaid flips a payable bill to PAID. Exactly one caller observes true.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListBillFilter, page pagination.Pagination) ([]*Bill, error)
}
