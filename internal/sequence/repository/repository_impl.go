package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/aquabill/internal/sequence/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, ns domain.Namespace, now time.Time) (int64, bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE sequence_counters
		 SET last_value = last_value + 1, updated_at = ?
		 WHERE prefix = ? AND bucket = ?`,
		now,
		ns.Prefix,
		ns.Bucket,
	)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	var value int64
	if err := db.WithContext(ctx).Raw(
		`SELECT last_value
		 FROM sequence_counters
		 WHERE prefix = ? AND bucket = ?`,
		ns.Prefix,
		ns.Bucket,
	).Scan(&value).Error; err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, counter *domain.Counter) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(counter)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, ns domain.Namespace) (*domain.Counter, error) {
	var counter domain.Counter
	err := db.WithContext(ctx).
		Where("prefix = ? AND bucket = ?", ns.Prefix, ns.Bucket).
		Limit(1).
		Find(&counter).Error
	if err != nil {
		return nil, err
	}
	if counter.Prefix == "" {
		return nil, nil
	}
	return &counter, nil
}

func (r *repo) AdvanceTo(ctx context.Context, db *gorm.DB, ns domain.Namespace, value int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sequence_counters
		 SET last_value = ?, updated_at = ?
		 WHERE prefix = ? AND bucket = ? AND last_value < ?`,
		value,
		now,
		ns.Prefix,
		ns.Bucket,
		value,
	).Error
}
