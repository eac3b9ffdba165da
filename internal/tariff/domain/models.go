package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Rate is a price per liter. Bills copy RatePerLiter, so a rate never
// changes once created; only its active flag moves.
type Rate struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"column:rate_name;size:100;not null" json:"rate_name"`
	RatePerLiter  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate_per_liter"`
	EffectiveFrom time.Time       `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	IsActive      bool            `gorm:"not null;default:false;index" json:"is_active"`
	SetBy         *snowflake.ID   `json:"set_by,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Rate) TableName() string { return "tariff_rates" }
