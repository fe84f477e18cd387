package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sak/internal/auth"
	"sak/internal/middleware"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, req *auth.LoginRequest) (*auth.TokenResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenResponse), args.Error(1)
}

func (m *MockAuthenticator) TokenTTL() time.Duration { return 24 * time.Hour }

type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	args := m.Called(ctx, token, expiration)
	return args.Error(0)
}

type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) Create(ctx context.Context, w *domain.Webhook) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWebhookRepository) ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*domain.Webhook, error) {
	args := m.Called(ctx, anchorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) Delete(ctx context.Context, anchorID, id uuid.UUID) error {
	args := m.Called(ctx, anchorID, id)
	return args.Error(0)
}

func newAuthRouter(svc Authenticator, revoker TokenRevoker) *mux.Router {
	return newRouter(Handlers{Auth: NewAuthHandler(svc, revoker, validator.New(), logger.NewNop())})
}

func TestAuthHandler_Login(t *testing.T) {
	anchorID := uuid.New()
	svc := new(MockAuthenticator)
	svc.On("Login", mock.Anything, &auth.LoginRequest{APIKey: "sak_live_good"}).Return(&auth.TokenResponse{
		Token:     "signed.jwt.token",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Anchor:    auth.AnchorInfo{ID: anchorID, Name: "Ripio"},
	}, nil)
	svc.On("Login", mock.Anything, &auth.LoginRequest{APIKey: "sak_live_bad"}).Return(nil, errors.ErrInvalidCredentials)

	router := newAuthRouter(svc, nil)

	rr := do(t, router, "POST", "/api/v1/auth/login", map[string]string{"apiKey": "sak_live_good"}, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "signed.jwt.token", body["token"])
	assert.Equal(t, "Ripio", body["anchor"].(map[string]interface{})["name"])

	rr = do(t, router, "POST", "/api/v1/auth/login", map[string]string{"apiKey": "sak_live_bad"}, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, "POST", "/api/v1/auth/login", map[string]string{}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/api/v1/auth/login", `{"apiKey":"x","extra":1}`, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body format", decodeBody(t, rr)["error"])
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"anchor_id": testAnchorID.String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"jti":       uuid.NewString(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthHandler_Logout(t *testing.T) {
	const secret = "logout-test-secret"
	ok, failing := signedToken(t, secret), signedToken(t, secret)

	revoker := new(MockRevoker)
	revoker.On("Blacklist", mock.Anything, ok, 24*time.Hour).Return(nil).Once()
	revoker.On("Blacklist", mock.Anything, failing, 24*time.Hour).Return(errors.New("redis down")).Once()

	h := NewAuthHandler(new(MockAuthenticator), revoker, validator.New(), logger.NewNop())
	r := mux.NewRouter()
	RegisterRoutes(r, Handlers{Auth: h}, Guards{
		Authenticate: middleware.NewAuthMiddleware(secret, nil).Authenticate,
	})

	logout := func(token string) int {
		req := httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, logout(ok))
	assert.Equal(t, http.StatusServiceUnavailable, logout(failing))
	assert.Equal(t, http.StatusUnauthorized, logout(""))
	revoker.AssertExpectations(t)
}

func TestWebhookHandler_Register(t *testing.T) {
	repo := new(MockWebhookRepository)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(w *domain.Webhook) bool {
		return w.AnchorID == testAnchorID && w.Active && len(w.Events) == 2 && w.Secret == "0123456789abcdef"
	})).Return(nil)

	router := newRouter(Handlers{Webhooks: NewWebhookHandler(repo, validator.New(), logger.NewNop())})

	rr := do(t, router, "POST", "/api/v1/anchors/webhooks", map[string]interface{}{
		"url":    "https://anchor.example.com/hooks",
		"events": []string{"kyc.validated", "kyc.rejected", "kyc.validated"},
		"secret": "0123456789abcdef",
	}, true)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["webhookId"])
	assert.Equal(t, "https://anchor.example.com/hooks", body["url"])
	repo.AssertExpectations(t)
}

func TestWebhookHandler_RegisterValidation(t *testing.T) {
	repo := new(MockWebhookRepository)
	router := newRouter(Handlers{Webhooks: NewWebhookHandler(repo, validator.New(), logger.NewNop())})

	rr := do(t, router, "POST", "/api/v1/anchors/webhooks", map[string]interface{}{
		"url":    "ftp:/nowhere",
		"events": []string{"kyc.deleted"},
		"secret": "short",
	}, true)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errs := decodeBody(t, rr)["validation_errors"].(map[string]interface{})
	assert.Contains(t, errs, "url")
	assert.Contains(t, errs, "secret")
	assert.Equal(t, "Invalid event", errs["events[0]"])
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWebhookHandler_ListAndDelete(t *testing.T) {
	hookID := uuid.New()
	repo := new(MockWebhookRepository)
	repo.On("ListByAnchor", mock.Anything, testAnchorID).Return(nil, nil)
	repo.On("Delete", mock.Anything, testAnchorID, hookID).Return(nil)
	repo.On("Delete", mock.Anything, testAnchorID, mock.Anything).Return(errors.ErrWebhookNotFound)

	router := newRouter(Handlers{Webhooks: NewWebhookHandler(repo, validator.New(), logger.NewNop())})

	rr := do(t, router, "GET", "/api/v1/anchors/webhooks", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, rr)["webhooks"])

	rr = do(t, router, "DELETE", "/api/v1/anchors/webhooks/"+hookID.String(), nil, true)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, router, "DELETE", "/api/v1/anchors/webhooks/"+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "DELETE", "/api/v1/anchors/webhooks/not-a-uuid", nil, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
