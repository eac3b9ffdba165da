package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *Rate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rate, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rate, error)
	// ListActive returns every row flagged active, normally at most one.
	ListActive(ctx context.Context, db *gorm.DB) ([]*Rate, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error
	DeactivateAllExcept(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	List(ctx context.Context, db *gorm.DB, activeOnly bool, page pagination.Pagination) ([]*Rate, error)
}
