// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"net/http"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// scopeKey is the context key for the token scope.
type scopeKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// SetUserID stores the authenticated user ID in the context.
// This is called by the auth middleware after validating the token.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetScope stores the token scope in the context.
func SetScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// GetScope retrieves the token scope from context. Returns empty string if not present.
func GetScope(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(string); ok {
		return s
	}
	return ""
}

// SetErrorCode stores an error code in the context.
// Handlers call this when returning error responses so the logging
// middleware can attach the code to the request log line.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// contextUpdater is implemented by response writers that can adopt an
// updated request context after the handler has started.
type contextUpdater interface {
	updateContext(ctx context.Context)
}

// UpdateResponseContext propagates an updated context to the logging
// middleware's response writer, so values set mid-handler (error codes)
// are visible when the request log line is written. A writer that does
// not support it is left alone.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	if u, ok := w.(contextUpdater); ok {
		u.updateContext(ctx)
	}
}
