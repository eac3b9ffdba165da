package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
)

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"size:64;not null;uniqueIndex" json:"username"`
	FullName  string       `gorm:"size:128;not null" json:"full_name"`
	Phone     string       `gorm:"size:20" json:"phone,omitempty"`
	Role      actor.Role   `gorm:"type:varchar(16);not null;index" json:"role"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
