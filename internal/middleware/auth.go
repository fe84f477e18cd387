// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"sak/internal/auth"

	"github.com/google/uuid"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxAnchorIDKey contextKey = "anchor_id"
	ctxTokenKey    contextKey = "token"
)

// TokenBlacklist reports revoked tokens.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware validates bearer JWTs and injects the anchor identity into the context.
type AuthMiddleware struct {
	jwtSecret string
	blacklist TokenBlacklist
}

// NewAuthMiddleware constructs an AuthMiddleware with the given secret. A nil
// blacklist disables revocation checks.
func NewAuthMiddleware(secret string, blacklist TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: secret, blacklist: blacklist}
}

// Authenticate enforces bearer auth and populates the anchor id on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		anchorID, err := auth.ParseToken(m.jwtSecret, tokenString)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsBlacklisted(r.Context(), tokenString)
			if err != nil {
				jsonError(w, http.StatusServiceUnavailable, "Unable to verify token")
				return
			}
			if revoked {
				jsonError(w, http.StatusUnauthorized, "Token revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ctxAnchorIDKey, anchorID)
		ctx = context.WithValue(ctx, ctxTokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AnchorIDFromContext returns the authenticated anchor's UUID from context.
func AnchorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxAnchorIDKey).(uuid.UUID)
	return id, ok
}

// TokenFromContext returns the bearer token the request was authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxTokenKey).(string)
	return s, ok
}

// WithAnchorID is used by tests and internal callers that bypass Authenticate.
func WithAnchorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAnchorIDKey, id)
}

// CORS restricts cross-origin access to the configured origins. With no
// origins configured the request origin is reflected.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowed) > 0 {
				for _, o := range allowed {
					if strings.EqualFold(strings.TrimSpace(o), origin) {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Set("Vary", "Origin")
						break
					}
				}
			} else if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, Idempotency-Key")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
