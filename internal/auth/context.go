package auth

import (
	"context"

	"github.com/dukerupert/chorepoints/internal/model"
)

type contextKey struct{}

// Caller is a resolved, authenticated identity. Family roles are looked up
// per request; only the global role travels with the caller.
type Caller struct {
	UserID     int64
	GlobalRole string
	SessionID  int64
}

func (c Caller) IsAdmin() bool {
	return c.GlobalRole == model.GlobalRoleAdmin
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}

func UserID(ctx context.Context) int64 {
	c, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return c.UserID
}
