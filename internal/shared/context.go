package shared

import "context"

// Role names carried in access tokens.
const (
	RoleAdmin    = "ADMIN"
	RoleBorrower = "BORROWER"
)

// Identity describes the authenticated caller.
type Identity struct {
	UserID   int64
	Role     string
	FullName string
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
