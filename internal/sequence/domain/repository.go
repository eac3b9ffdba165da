package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Increment bumps the counter and returns the new value. found is false
	// when the namespace has no counter row yet.
	Increment(ctx context.Context, db *gorm.DB, ns Namespace, now time.Time) (value int64, found bool, err error)
	Insert(ctx context.Context, db *gorm.DB, counter *Counter) (bool, error)
	Get(ctx context.Context, db *gorm.DB, ns Namespace) (*Counter, error)
	AdvanceTo(ctx context.Context, db *gorm.DB, ns Namespace, value int64, now time.Time) error
}
