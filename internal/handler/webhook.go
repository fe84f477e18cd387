package handler

import (
	"context"
	"net/http"
	"time"

	"sak/internal/middleware"
	"sak/pkg/domain"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// WebhookRepository persists anchor webhook subscriptions.
type WebhookRepository interface {
	Create(ctx context.Context, w *domain.Webhook) error
	ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*domain.Webhook, error)
	Delete(ctx context.Context, anchorID, id uuid.UUID) error
}

type WebhookHandler struct {
	repo      WebhookRepository
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewWebhookHandler(repo WebhookRepository, val *validator.Validator, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{repo: repo, validator: val, logger: log, now: time.Now}
}

type RegisterWebhookRequest struct {
	URL    string   `json:"url" validate:"required,http_url,max=2048"`
	Events []string `json:"events" validate:"required,min=1,dive,kyc_event"`
	Secret string   `json:"secret" validate:"required,min=16,max=256"`
}

// Register handles POST /api/v1/anchors/webhooks.
func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	anchorID, ok := middleware.AnchorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req RegisterWebhookRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	hook := &domain.Webhook{
		ID:        uuid.New(),
		AnchorID:  anchorID,
		URL:       req.URL,
		Events:    dedupe(req.Events),
		Secret:    req.Secret,
		Active:    true,
		CreatedAt: h.now().UTC(),
	}
	if err := h.repo.Create(r.Context(), hook); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Webhook registered", map[string]interface{}{
		"event":      "webhook_registered",
		"anchor_id":  anchorID.String(),
		"webhook_id": hook.ID.String(),
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"webhookId": hook.ID,
		"url":       hook.URL,
		"createdAt": hook.CreatedAt.Format(time.RFC3339),
	})
}

// List handles GET /api/v1/anchors/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	anchorID, ok := middleware.AnchorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	hooks, err := h.repo.ListByAnchor(r.Context(), anchorID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	if hooks == nil {
		hooks = []*domain.Webhook{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"webhooks": hooks})
}

// Delete handles DELETE /api/v1/anchors/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	anchorID, ok := middleware.AnchorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid webhook ID")
		return
	}
	if err := h.repo.Delete(r.Context(), anchorID, id); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
