package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	default:
		return false
	}
}

// Household is a metered connection. Code is assigned once at registration.
type Household struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code            string        `gorm:"column:household_code;size:20;not null;uniqueIndex" json:"household_code"`
	Name            string        `gorm:"column:household_name;size:100;not null" json:"household_name"`
	HeadOfHousehold string        `gorm:"size:100;not null" json:"head_of_household"`
	NationalID      string        `gorm:"size:16;not null;uniqueIndex" json:"national_id"`
	Address         string        `gorm:"type:text" json:"address,omitempty"`
	Sector          string        `gorm:"size:50" json:"sector,omitempty"`
	Cell            string        `gorm:"size:50" json:"cell,omitempty"`
	Village         string        `gorm:"size:50" json:"village,omitempty"`
	Phone           string        `gorm:"column:phone_number;size:15;not null" json:"phone_number"`
	Email           string        `gorm:"size:100" json:"email,omitempty"`
	Members         int           `gorm:"column:number_of_members;not null;default:1" json:"number_of_members"`
	MeterNumber     *string       `gorm:"size:50;uniqueIndex" json:"meter_number,omitempty"`
	ConnectionDate  time.Time     `gorm:"not null" json:"connection_date"`
	Status          Status        `gorm:"type:varchar(16);not null;index" json:"status"`
	UserID          *snowflake.ID `gorm:"uniqueIndex" json:"user_id,omitempty"`
	RegisteredBy    *snowflake.ID `json:"registered_by,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

func (Household) TableName() string { return "households" }

// Billable reports whether bills may be generated for the household.
func (h Household) Billable() bool {
	return h.Status == StatusActive
}
