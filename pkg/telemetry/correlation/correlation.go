// Package correlation threads one id through the logs and spans of a single
// operation: a bill batch, a relay pass or one caller request.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type key struct{}

// New returns a fresh lexically sortable id.
func New() string {
	return ulid.Make().String()
}

// ID returns the id carried by ctx, or "" when there is none.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// WithID stores id on ctx. An empty id leaves ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure keeps an id already on ctx and otherwise attaches a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := New()
	return WithID(ctx, id), id
}
