package handler

import (
	"context"
	"net/http"
	"time"

	"sak/internal/auth"
	"sak/internal/middleware"
	"sak/pkg/errors"
	"sak/pkg/logger"
	"sak/pkg/validator"
)

// Authenticator exchanges an API key for a token.
type Authenticator interface {
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.TokenResponse, error)
	TokenTTL() time.Duration
}

// TokenRevoker records logged-out tokens.
type TokenRevoker interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
}

type AuthHandler struct {
	service   Authenticator
	revoker   TokenRevoker
	validator *validator.Validator
	logger    logger.Logger
}

func NewAuthHandler(service Authenticator, revoker TokenRevoker, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		revoker:   revoker,
		validator: val,
		logger:    log,
	}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidCredentials) {
			h.logger.Warn("Anchor login failed", map[string]interface{}{
				"event":      "anchor_login_failed",
				"ip_address": r.RemoteAddr,
			})
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		respondServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Anchor logged in", map[string]interface{}{
		"event":     "anchor_login",
		"anchor_id": resp.Anchor.ID.String(),
	})
	respondJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout. It revokes the bearer token the
// request was authenticated with.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if h.revoker != nil {
		if err := h.revoker.Blacklist(r.Context(), token, h.service.TokenTTL()); err != nil {
			h.logger.Error("Failed to revoke token", map[string]interface{}{"error": err.Error()})
			respondError(w, http.StatusServiceUnavailable, "Unable to log out, please try again")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
