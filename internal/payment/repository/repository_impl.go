package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/aquabill/internal/payment/domain"
	pkgdb "github.com/smallbiznis/aquabill/pkg/db"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByReceipt(ctx context.Context, db *gorm.DB, receiptNumber string) (*domain.Payment, error) {
	return r.findOne(db.WithContext(ctx).Where("receipt_number = ?", receiptNumber))
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	return r.findOne(db.WithContext(ctx).Where("transaction_reference = ?", reference))
}

func (r *repo) SumCompleted(ctx context.Context, db *gorm.DB, billID snowflake.ID) (decimal.Decimal, error) {
	return pkgdb.SumDecimal(db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("bill_id = ? AND payment_status = ?", billID, domain.StatusCompleted), "amount_paid")
}

func (r *repo) CountCompleted(ctx context.Context, db *gorm.DB, billID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("bill_id = ? AND payment_status = ?", billID, domain.StatusCompleted).
		Count(&count).Error
	return count, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListPaymentFilter, page pagination.Pagination) ([]*domain.Payment, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payment{})
	if filter.BillID != 0 {
		stmt = stmt.Where("bill_id = ?", filter.BillID)
	}
	if filter.Method != "" {
		stmt = stmt.Where("payment_method = ?", filter.Method)
	}
	if filter.Status != "" {
		stmt = stmt.Where("payment_status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}
	var payments []*domain.Payment
	if err := stmt.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) findOne(stmt *gorm.DB) (*domain.Payment, error) {
	var payment domain.Payment
	if err := stmt.Limit(1).Find(&payment).Error; err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}
