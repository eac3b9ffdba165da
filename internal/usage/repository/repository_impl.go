package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/usage/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "household_id"}, {Name: "reading_month"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Record, error) {
	return r.findOne(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, readingMonth string) (*domain.Record, error) {
	return r.findOne(db.WithContext(ctx).
		Where("household_id = ? AND reading_month = ?", householdID, readingMonth))
}

func (r *repo) LockForPeriod(ctx context.Context, db *gorm.DB, householdID snowflake.ID, readingMonth string) (*domain.Record, error) {
	return r.findOne(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("household_id = ? AND reading_month = ?", householdID, readingMonth))
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
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

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListUsageFilter, page pagination.Pagination) ([]*domain.Record, error) {
	stmt := db.WithContext(ctx).Model(&domain.Record{})
	if filter.HouseholdID != 0 {
		stmt = stmt.Where("household_id = ?", filter.HouseholdID)
	}
	if filter.ReadingMonth != "" {
		stmt = stmt.Where("reading_month = ?", filter.ReadingMonth)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}
	var records []*domain.Record
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) findOne(stmt *gorm.DB) (*domain.Record, error) {
	var record domain.Record
	if err := stmt.Limit(1).Find(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}
