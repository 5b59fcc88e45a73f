// Package requestctx provides request-scoped values (user identity, admin
// flag) set by middleware.
package requestctx

import "context"

type userIDKeyType struct{}
type adminKeyType struct{}

var (
	userIDKey = userIDKeyType{}
	adminKey  = adminKeyType{}
)

// SetUserID stores the authenticated user ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user ID from context, or "" if not set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SetAdmin marks the request as authenticated with the admin key.
func SetAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the request carries admin authentication.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}
