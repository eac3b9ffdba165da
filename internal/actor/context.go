// Package actor carries the authenticated caller on a context.Context.
//
// Authentication happens upstream; services only read the identity to stamp
// audit columns and to decide who is told about a payment.
package actor

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleManager   Role = "Manager"
	RoleHousehold Role = "Household"
	RoleSystem    Role = "System"
)

type Actor struct {
	UserID snowflake.ID
	Role   Role
}

// System is the identity used by background jobs.
var System = Actor{Role: RoleSystem}

// IsStaff reports whether the actor works for the utility.
func (a Actor) IsStaff() bool {
	switch a.Role {
	case RoleAdmin, RoleManager, RoleSystem:
		return true
	default:
		return false
	}
}

// UserIDPtr returns the user id, or nil for anonymous and system actors.
func (a Actor) UserIDPtr() *snowflake.ID {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// FromContextOrSystem falls back to the system actor.
func FromContextOrSystem(ctx context.Context) Actor {
	if a, ok := FromContext(ctx); ok {
		return a
	}
	return System
}
