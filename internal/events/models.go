package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is an outbox row written in the same transaction as the
// domain change it describes.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"size:64;not null;index"`
	Payload     datatypes.JSONMap `gorm:"not null"`
	DedupeKey   string            `gorm:"size:128;not null;uniqueIndex:ux_billing_event_dedupe"`
	Published   bool              `gorm:"not null;default:false;index"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }
