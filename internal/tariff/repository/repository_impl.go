package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/tariff/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.Rate) error {
	return db.WithContext(ctx).Create(rate).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rate, error) {
	return r.findOne(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rate, error) {
	return r.findOne(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Rate, error) {
	var rates []*domain.Rate
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Rate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": now,
		}).Error
}

func (r *repo) DeactivateAllExcept(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Rate{}).
		Where("is_active = ? AND id <> ?", true, id).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": now,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool, page pagination.Pagination) ([]*domain.Rate, error) {
	stmt := db.WithContext(ctx).Model(&domain.Rate{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}
	var rates []*domain.Rate
	if err := stmt.Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) findOne(stmt *gorm.DB) (*domain.Rate, error) {
	var rate domain.Rate
	if err := stmt.Limit(1).Find(&rate).Error; err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}
