package domain

import "context"

// Identity is what the authentication provider knows about a user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Profile carries the authorisation attributes kept alongside a user.
type Profile struct {
	Warehouse Warehouse `json:"warehouse"`
	Admin     bool      `json:"admin"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	Identity
	Profile
}

func (p Principal) Authenticated() bool {
	return p.ID != ""
}

type contextKey int

const (
	userIDKey contextKey = iota
	idempotencyKey
)

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithIdempotencyKey attaches a client supplied token that makes a
// command safe to resubmit.
func ContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(idempotencyKey).(string); ok {
		return v
	}
	return ""
}
