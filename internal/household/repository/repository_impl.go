package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/household/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, household *domain.Household) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(household)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).Where("household_code = ?", code))
}

func (r *repo) FindByNationalID(ctx context.Context, db *gorm.DB, nationalID string) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).Where("national_id = ?", nationalID))
}

func (r *repo) FindByMeterNumber(ctx context.Context, db *gorm.DB, meterNumber string) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).Where("meter_number = ?", meterNumber))
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Household, error) {
	return r.findOne(db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListHouseholdFilter, page pagination.Pagination) ([]*domain.Household, error) {
	stmt, err := pagination.Apply(r.filtered(db.WithContext(ctx), filter), page)
	if err != nil {
		return nil, err
	}
	var items []*domain.Household
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB, filter domain.ListHouseholdFilter) ([]*domain.Household, error) {
	var items []*domain.Household
	err := r.filtered(db.WithContext(ctx), filter).
		Order("household_code asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, household *domain.Household) error {
	return db.WithContext(ctx).
		Model(&domain.Household{}).
		Where("id = ?", household.ID).
		Updates(map[string]any{
			"status":     household.Status,
			"updated_at": household.UpdatedAt,
		}).Error
}

func (r *repo) filtered(db *gorm.DB, filter domain.ListHouseholdFilter) *gorm.DB {
	stmt := db.Model(&domain.Household{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if len(filter.IDs) > 0 {
		stmt = stmt.Where("id IN ?", filter.IDs)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		stmt = stmt.Where(
			"LOWER(household_code) LIKE ? OR LOWER(household_name) LIKE ? OR LOWER(head_of_household) LIKE ? OR national_id LIKE ?",
			like, like, like, like,
		)
	}
	return stmt
}

func (r *repo) findOne(stmt *gorm.DB) (*domain.Household, error) {
	var household domain.Household
	if err := stmt.Limit(1).Find(&household).Error; err != nil {
		return nil, err
	}
	if household.ID == 0 {
		return nil, nil
	}
	return &household, nil
}
