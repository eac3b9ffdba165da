package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReceipt(ctx context.Context, db *gorm.DB, receiptNumber string) (*Payment, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	// SumCompleted totals the completed payments applied to a bill.
	SumCompleted(ctx context.Context, db *gorm.DB, billID snowflake.ID) (decimal.Decimal, error)
	CountCompleted(ctx context.Context, db *gorm.DB, billID snowflake.ID) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListPaymentFilter, page pagination.Pagination) ([]*Payment, error)
}
