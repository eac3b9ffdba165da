package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/notification/domain"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, item *domain.Notification) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(item).Error
}

func (r *repo) ListNotifications(ctx context.Context, db *gorm.DB, userID snowflake.ID, unreadOnly bool, page pagination.Pagination) ([]*domain.Notification, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", userID)
	if unreadOnly {
		stmt = stmt.Where("is_read = ?", false)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}

	var items []*domain.Notification
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (bool, error) {
	var item domain.Notification
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&item).Error; err != nil {
		return false, err
	}
	if item.ID == 0 {
		return false, nil
	}
	if item.IsRead {
		return true, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
	return err == nil, err
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertSMS(ctx context.Context, db *gorm.DB, item *domain.SMSLog) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) SMSDelivered(ctx context.Context, db *gorm.DB, eventID snowflake.ID, phone string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.SMSLog{}).
		Where("event_id = ? AND phone_number = ? AND status = ?", eventID, phone, domain.SMSStatusSent).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListSMS(ctx context.Context, db *gorm.DB, filter domain.SMSFilter, page pagination.Pagination) ([]*domain.SMSLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.SMSLog{})
	if filter.Type != "" {
		stmt = stmt.Where("notification_type = ?", filter.Type)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Phone != "" {
		stmt = stmt.Where("phone_number = ?", filter.Phone)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}

	var items []*domain.SMSLog
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
