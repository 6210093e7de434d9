package auth

import "context"

type contextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ResolveCurrentUser returns the identity stored in ctx.
func ResolveCurrentUser(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}
