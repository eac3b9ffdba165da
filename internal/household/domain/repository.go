package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when a unique key already holds the row.
	Insert(ctx context.Context, db *gorm.DB, household *Household) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Household, error)
	// LockByID reads the household under a row lock held until db commits.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Household, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Household, error)
	FindByNationalID(ctx context.Context, db *gorm.DB, nationalID string) (*Household, error)
	FindByMeterNumber(ctx context.Context, db *gorm.DB, meterNumber string) (*Household, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Household, error)
	List(ctx context.Context, db *gorm.DB, filter ListHouseholdFilter, page pagination.Pagination) ([]*Household, error)
	ListAll(ctx context.Context, db *gorm.DB, filter ListHouseholdFilter) ([]*Household, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, household *Household) error
}
