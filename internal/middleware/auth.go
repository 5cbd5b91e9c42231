package middleware

import (
	"net/http"
	"strings"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/auth"
)

// authErrorBody is the JSON body written for authentication failures.
// It matches the api package's error envelope without importing it
// (api imports middleware).
const authErrorBody = `{"error":{"code":"auth_failed","message":"Authentication required"}}`

// forbiddenScopeBody is the JSON body written when the token's scope is
// insufficient for the route.
const forbiddenScopeBody = `{"error":{"code":"forbidden","message":"Token scope does not permit this operation"}}`

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// RequireOwner returns middleware that authenticates requests with an
// owner-scoped bearer token. Overlay tokens are rejected: they grant
// read access to the overlay view only.
func RequireOwner(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return requireScope(jwtService, func(scope string) bool {
		return scope == auth.ScopeOwner
	})
}

// RequireOverlay returns middleware that authenticates requests with an
// overlay-scoped bearer token. Owner tokens are also accepted: an owner
// can always read their own overlay view.
func RequireOverlay(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return requireScope(jwtService, func(scope string) bool {
		return scope == auth.ScopeOverlay || scope == auth.ScopeOwner
	})
}

func requireScope(jwtService *auth.JWTService, allowed func(scope string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				ctx := SetErrorCode(r.Context(), "auth_failed")
				UpdateResponseContext(w, ctx)
				writeAuthError(w, http.StatusUnauthorized, authErrorBody)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				ctx := SetErrorCode(r.Context(), "auth_failed")
				UpdateResponseContext(w, ctx)
				writeAuthError(w, http.StatusUnauthorized, authErrorBody)
				return
			}

			if !allowed(claims.Scope) {
				ctx := SetErrorCode(r.Context(), "forbidden")
				UpdateResponseContext(w, ctx)
				writeAuthError(w, http.StatusForbidden, forbiddenScopeBody)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			ctx = SetScope(ctx, claims.Scope)
			// Make the user visible to the request log line.
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
