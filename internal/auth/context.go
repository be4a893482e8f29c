// ABOUTME: Carries the authenticated connection id through request handlers
// ABOUTME: Populated by BearerMiddleware, read by the tool bridge

package auth

import (
	"context"
)

type connectionKey struct{}

// WithConnection returns a context carrying connectionID.
func WithConnection(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionKey{}, connectionID)
}

// ConnectionFromContext returns the connection id, or "" if none is attached.
func ConnectionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connectionKey{}).(string)
	return id
}
