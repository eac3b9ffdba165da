package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertNotification(ctx context.Context, db *gorm.DB, item *Notification) error
	ListNotifications(ctx context.Context, db *gorm.DB, userID snowflake.ID, unreadOnly bool, page pagination.Pagination) ([]*Notification, error)
	CountUnread(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (bool, error)
	MarkAllRead(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)

	InsertSMS(ctx context.Context, db *gorm.DB, item *SMSLog) error
	SMSDelivered(ctx context.Context, db *gorm.DB, eventID snowflake.ID, phone string) (bool, error)
	ListSMS(ctx context.Context, db *gorm.DB, filter SMSFilter, page pagination.Pagination) ([]*SMSLog, error)
}

type SMSFilter struct {
	Type   SMSType
	Status SMSStatus
	Phone  string
}
