package auth

import (
	"context"
	"time"
)

// Role is an access tier. The two tiers are mutually exclusive.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// Assertion is the decoded content of a signed token.
type Assertion struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is the request-scoped result of a verified Assertion.
type Identity struct {
	Subject string
	Role    Role
}

// HasRole reports whether the identity holds the given role.
func (id Identity) HasRole(role Role) bool {
	return id.Role == role
}

type identityContextKey struct{}

// WithIdentity returns a new context with the given identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the identity attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
