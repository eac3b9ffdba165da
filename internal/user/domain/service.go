package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/pkg/errs"
)

type CreateUserRequest struct {
	Username string     `json:"username" validate:"required,max=64"`
	FullName string     `json:"full_name" validate:"required,max=128"`
	Phone    string     `json:"phone" validate:"omitempty,numeric,min=10,max=15"`
	Role     actor.Role `json:"role" validate:"required,oneof=Admin Manager Household"`
}

// Directory is the read side other modules depend on.
type Directory interface {
	GetByID(ctx context.Context, id snowflake.ID) (User, error)
	// ListByRoles returns active users holding any of roles.
	ListByRoles(ctx context.Context, roles ...actor.Role) ([]User, error)
}

type Service interface {
	Directory
	Create(ctx context.Context, req CreateUserRequest) (User, error)
}

var (
	ErrNotFound      = errs.New(errs.KindNotFound, "user_not_found")
	ErrUsernameTaken = errs.New(errs.KindDuplicate, "username_taken")
)
