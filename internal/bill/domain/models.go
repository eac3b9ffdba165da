// Package domain contains persistence models for water bills.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status represents bill lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// Payable reports whether payments may still be applied.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusOverdue
}

// Bill is the invoice for one household and billing period. Financial fields
// never change after generation.
type Bill struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	BillNumber     string          `gorm:"size:30;not null;uniqueIndex" json:"bill_number"`
	HouseholdID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_bills_household_period,priority:1" json:"household_id"`
	UsageID        *snowflake.ID   `gorm:"index" json:"usage_id,omitempty"`
	TariffID       *snowflake.ID   `json:"tariff_id,omitempty"`
	LitersConsumed decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"liters_consumed"`
	RateApplied    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate_applied"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	PenaltyAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"penalty_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	BillDate       time.Time       `gorm:"not null" json:"bill_date"`
	DueDate        time.Time       `gorm:"not null" json:"due_date"`
	BillingPeriod  string          `gorm:"size:7;not null;index;uniqueIndex:ux_bills_household_period,priority:2" json:"billing_period"`
	Status         Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	GeneratedBy    *snowflake.ID   `json:"generated_by,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

// Amounts holds the computed financial fields of a bill.
type Amounts struct {
	LitersConsumed decimal.Decimal
	RateApplied    decimal.Decimal
	Subtotal       decimal.Decimal
	PenaltyAmount  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Compute derives subtotal and total exactly.
func Compute(liters, rate, penalty, discount decimal.Decimal) Amounts {
	subtotal := liters.Mul(rate)
	return Amounts{
		LitersConsumed: liters,
		RateApplied:    rate,
		Subtotal:       subtotal,
		PenaltyAmount:  penalty,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(penalty).Sub(discount),
	}
}

// IsSettled reports whether paid covers total.
func IsSettled(total, paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total)
}
