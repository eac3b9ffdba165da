package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash         Method = "CASH"
	MethodMobileMoney  Method = "MOBILE_MONEY"
	MethodBankTransfer Method = "BANK_TRANSFER"
)

func (m Method) Label() string {
	switch m {
	case MethodCash:
		return "Cash"
	case MethodMobileMoney:
		return "Mobile Money"
	case MethodBankTransfer:
		return "Bank Transfer"
	default:
		return string(m)
	}
}

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusPending   Status = "PENDING"
	StatusFailed    Status = "FAILED"
)

// Direction tells the notification side who has to be told about a payment.
type Direction string

const (
	// DirectionHouseholdPaid notifies staff that a household paid.
	DirectionHouseholdPaid Direction = "household_paid"
	// DirectionStaffRecorded notifies the household that staff recorded a payment for it.
	DirectionStaffRecorded Direction = "staff_recorded"
)

// Payment is one amount applied to a bill. Only completed payments count
// toward the bill balance.
type Payment struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReceiptNumber        string          `gorm:"size:30;not null;uniqueIndex" json:"receipt_number"`
	BillID               snowflake.ID    `gorm:"not null;index" json:"bill_id"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount_paid"`
	PaidAt               time.Time       `gorm:"not null;index" json:"paid_at"`
	Method               Method          `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	TransactionReference string          `gorm:"size:100;not null;uniqueIndex" json:"transaction_reference"`
	PayerName            string          `gorm:"size:100;not null" json:"payer_name"`
	PayerPhone           string          `gorm:"size:15" json:"payer_phone,omitempty"`
	Status               Status          `gorm:"column:payment_status;type:varchar(16);not null;index" json:"payment_status"`
	ReceivedBy           *snowflake.ID   `json:"received_by,omitempty"`
	SubmittedBy          *snowflake.ID   `json:"submitted_by,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }
