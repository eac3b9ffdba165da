package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/bill/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "household_id"}, {Name: "billing_period"}},
			DoNothing: true,
		}).
		Create(bill)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bill, error) {
	return r.findOne(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bill, error) {
	return r.findOne(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, billNumber string) (*domain.Bill, error) {
	return r.findOne(db.WithContext(ctx).Where("bill_number = ?", billNumber))
}

func (r *repo) FindForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, billingPeriod string) (*domain.Bill, error) {
	return r.findOne(db.WithContext(ctx).
		Where("household_id = ? AND billing_period = ?", householdID, billingPeriod))
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	return r.Transition(ctx, db, id, []domain.Status{domain.StatusPending, domain.StatusOverdue}, domain.StatusPaid, now)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBillFilter, page pagination.Pagination) ([]*domain.Bill, error) {
	stmt := db.WithContext(ctx).Model(&domain.Bill{})
	if filter.HouseholdID != 0 {
		stmt = stmt.Where("household_id = ?", filter.HouseholdID)
	}
	if filter.BillingPeriod != "" {
		stmt = stmt.Where("billing_period = ?", filter.BillingPeriod)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}
	var bills []*domain.Bill
	if err := stmt.Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) findOne(stmt *gorm.DB) (*domain.Bill, error) {
	var bill domain.Bill
	if err := stmt.Limit(1).Find(&bill).Error; err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}
