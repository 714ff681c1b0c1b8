package auth

import "context"

// Identity is the authenticated caller of a scrape request.
type Identity struct {
	Subject string
	Role    Role
}

func (id Identity) String() string {
	if id.Subject == "" {
		return string(id.Role)
	}
	return id.Subject + "/" + string(id.Role)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the guard, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
