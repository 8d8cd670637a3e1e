// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/auth"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// RequireAuth validates the Bearer JWT in the Authorization header.
// On success it injects *auth.Claims into the request context.
// On failure it writes a 401 error envelope.
func RequireAuth(secret, audience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				envelope.Error(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret, audience)
			if err != nil {
				envelope.Error(w, http.StatusUnauthorized, "unauthorized", "access token is invalid or expired")
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if t, ok := r.Context().Value(tenantSlotKey).(*string); ok {
				*t = claims.TenantID()
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts Claims from the request context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v := ctx.Value(claimsKey)
	if v == nil {
		return nil
	}
	c, _ := v.(*auth.Claims)
	return c
}

// TenantID returns the authenticated tenant, or "" outside RequireAuth.
func TenantID(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.TenantID()
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
