// Package auth implements anchor authentication: API key login and token issuance.
//
// ==============================================================================
// AUTH SERVICE - internal/auth/service.go
// ==============================================================================
package auth

import (
	"context"
	"fmt"
	"time"

	"sak/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenExpiry = 24 * time.Hour

// Service exchanges anchor API keys for signed tokens.
type Service struct {
	keys      *APIKeyService
	jwtSecret string
	jwtExpiry time.Duration
	now       func() time.Time
}

// NewService constructs a Service with the given key service and JWT settings.
func NewService(keys *APIKeyService, jwtSecret string, jwtExpiry time.Duration) *Service {
	if jwtExpiry <= 0 {
		jwtExpiry = DefaultTokenExpiry
	}
	return &Service{
		keys:      keys,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		now:       time.Now,
	}
}

// TokenTTL is how long issued tokens live. Revocations need not outlast it.
func (s *Service) TokenTTL() time.Duration { return s.jwtExpiry }

// LoginRequest carries the anchor's API key.
type LoginRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

type AnchorInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// TokenResponse is returned on successful login.
type TokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Anchor    AnchorInfo `json:"anchor"`
}

// Login authenticates an anchor and returns a token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	anchor, err := s.keys.ValidateKey(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.jwtExpiry)
	claims := jwt.MapClaims{
		"anchor_id": anchor.ID.String(),
		"name":      anchor.Name,
		"exp":       expiresAt.Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		Anchor:    AnchorInfo{ID: anchor.ID, Name: anchor.Name},
	}, nil
}

// ParseToken validates a token and returns the anchor it was issued to.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, errors.ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.ErrInvalidCredentials
	}
	idStr, ok := claims["anchor_id"].(string)
	if !ok {
		return uuid.Nil, errors.ErrInvalidCredentials
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidCredentials
	}
	return id, nil
}
