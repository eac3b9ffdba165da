package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SMSType string

const (
	SMSTypeBillGenerated       SMSType = "BILL_GENERATED"
	SMSTypePaymentConfirmation SMSType = "PAYMENT_CONFIRMATION"
	SMSTypeGeneral             SMSType = "GENERAL"
)

type SMSStatus string

const (
	SMSStatusSent   SMSStatus = "SENT"
	SMSStatusFailed SMSStatus = "FAILED"
)

// SMSLog records every SMS handed to the provider.
type SMSLog struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	EventID      *snowflake.ID `gorm:"index" json:"event_id,omitempty"`
	PhoneNumber  string        `gorm:"size:15;not null;index" json:"phone_number"`
	Message      string        `gorm:"type:text;not null" json:"message"`
	Type         SMSType       `gorm:"column:notification_type;type:varchar(32);not null" json:"notification_type"`
	Status       SMSStatus     `gorm:"type:varchar(16);not null" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	SentAt       time.Time     `gorm:"not null;index" json:"sent_at"`
}

func (SMSLog) TableName() string { return "sms_notifications" }

type Type string

const (
	TypeHouseholdPayment Type = "household_payment"
	TypeAdminPayment     Type = "admin_payment"
	TypeNewBill          Type = "new_bill"
	TypeBillPaid         Type = "bill_paid"
	TypeNewRegistration  Type = "new_registration"
	TypeTariffChange     Type = "tariff_change"
)

// Notification is an in-app alert for one user. A user receives at most one
// notification per event.
type Notification struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_notifications_event_user,priority:2" json:"user_id"`
	EventID   *snowflake.ID `gorm:"uniqueIndex:ux_notifications_event_user,priority:1" json:"event_id,omitempty"`
	Type      Type          `gorm:"column:notification_type;type:varchar(32);not null" json:"notification_type"`
	Title     string        `gorm:"size:200;not null" json:"title"`
	Message   string        `gorm:"type:text;not null" json:"message"`
	Link      string        `gorm:"size:200" json:"link,omitempty"`
	IsRead    bool          `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
