// Package domain contains the meter-reading ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusBilled   Status = "BILLED"
)

// Record is one household's meter reading for a billing period. LitersUsed
// is always derived from the two readings.
type Record struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	HouseholdID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_water_usage_household_month,priority:1" json:"household_id"`
	PreviousReading decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"previous_reading"`
	CurrentReading  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"current_reading"`
	LitersUsed      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"liters_used"`
	ReadingDate     time.Time       `gorm:"not null" json:"reading_date"`
	ReadingMonth    string          `gorm:"size:7;not null;index;uniqueIndex:ux_water_usage_household_month,priority:2" json:"reading_month"`
	Status          Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	RecordedBy      *snowflake.ID   `json:"recorded_by,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string { return "water_usage" }

// Consumption returns current minus previous.
func Consumption(previous, current decimal.Decimal) decimal.Decimal {
	return current.Sub(previous)
}
