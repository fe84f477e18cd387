// ==============================================================================
// KYC HTTP HANDLER - internal/handler/kyc.go
// ==============================================================================
// Anchor-facing status and review endpoints plus the wallet-keyed user
// endpoints for submissions, documents and the dashboard.
package handler

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"sak/internal/kyc"
	"sak/internal/middleware"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/gorilla/mux"
)

// KYCService is the part of kyc.Service the HTTP layer uses.
type KYCService interface {
	Submit(ctx context.Context, wallet string, tier domain.KYCTier, data domain.KYCData) (*domain.KYCRecord, error)
	Status(ctx context.Context, wallet string) (*kyc.WalletStatus, error)
	TierStatus(ctx context.Context, wallet string, tier domain.KYCTier) (*kyc.TierStatus, error)
	Verify(ctx context.Context, wallet string, tier domain.KYCTier, verifiedBy, notes string) (*domain.KYCRecord, error)
	Reject(ctx context.Context, wallet string, tier domain.KYCTier, reason, rejectedBy, details string) (*domain.KYCRecord, error)
	Metadata(ctx context.Context, wallet string) (map[domain.KYCTier]domain.TierMetadata, error)
	Dashboard(ctx context.Context, wallet string) (*kyc.Dashboard, error)
	Upload(ctx context.Context, wallet string, tier domain.KYCTier, fileName, contentType string, data []byte) (*kyc.UploadResult, error)
	DeleteFile(ctx context.Context, wallet, path string) error
}

type KYCHandler struct {
	service      KYCService
	validator    *validator.Validator
	logger       logger.Logger
	maxFileBytes int64
}

func NewKYCHandler(service KYCService, val *validator.Validator, log logger.Logger, maxFileSizeMB int) *KYCHandler {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 10
	}
	return &KYCHandler{
		service:      service,
		validator:    val,
		logger:       log,
		maxFileBytes: int64(maxFileSizeMB) << 20,
	}
}

type VerifyRequest struct {
	VerifiedBy string `json:"verifiedBy" validate:"omitempty,max=255"`
	Notes      string `json:"notes" validate:"omitempty,max=2000"`
}

type RejectRequest struct {
	Reason     string `json:"reason" validate:"required,max=500"`
	RejectedBy string `json:"rejectedBy" validate:"omitempty,max=255"`
	Details    string `json:"details" validate:"omitempty,max=2000"`
}

type DeleteFileRequest struct {
	Path string `json:"path" validate:"required"`
}

// walletParam returns the {wallet} path variable after a format check.
func walletParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := strings.TrimSpace(mux.Vars(r)["wallet"])
	if !domain.IsValidStellarPublicKey(wallet) {
		respondError(w, http.StatusBadRequest, errors.ErrInvalidPublicKey.Error())
		return "", false
	}
	return wallet, true
}

func tierParam(w http.ResponseWriter, r *http.Request) (domain.KYCTier, bool) {
	tier, err := domain.ParseTier(mux.Vars(r)["tier"])
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.ErrInvalidTier.Error())
		return "", false
	}
	return tier, true
}

// reviewer names who acted: the explicit value from the body, otherwise the
// authenticated anchor.
func reviewer(r *http.Request, explicit string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return s
	}
	if id, ok := middleware.AnchorIDFromContext(r.Context()); ok {
		return "anchor:" + id.String()
	}
	return "anchor"
}

// ==============================================================================
// ANCHOR ENDPOINTS
// ==============================================================================

// GetStatus handles GET /api/v1/kyc/{wallet}.
func (h *KYCHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	status, err := h.service.Status(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetTierStatus handles GET /api/v1/kyc/{wallet}/{tier}.
func (h *KYCHandler) GetTierStatus(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	status, err := h.service.TierStatus(r.Context(), wallet, tier)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetMetadata handles GET /api/v1/kyc/{wallet}/metadata.
func (h *KYCHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	md, err := h.service.Metadata(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":   wallet,
		"metadata": md,
	})
}

// Verify handles POST /api/v1/kyc/{wallet}/{tier}/verify.
func (h *KYCHandler) Verify(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req VerifyRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	by := reviewer(r, req.VerifiedBy)
	rec, err := h.service.Verify(r.Context(), wallet, tier, by, req.Notes)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("KYC tier verified", map[string]interface{}{
		"event":       "kyc_verified",
		"wallet":      wallet,
		"tier":        string(tier),
		"verified_by": by,
	})

	verifiedAt := rec.UpdatedAt
	if rec.ValidatedAt != nil {
		verifiedAt = *rec.ValidatedAt
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"wallet":     wallet,
		"tier":       tier,
		"status":     rec.Status,
		"verifiedAt": verifiedAt.UTC().Format(time.RFC3339),
	})
}

// Reject handles POST /api/v1/kyc/{wallet}/{tier}/reject.
func (h *KYCHandler) Reject(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	by := reviewer(r, req.RejectedBy)
	rec, err := h.service.Reject(r.Context(), wallet, tier, req.Reason, by, req.Details)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("KYC tier rejected", map[string]interface{}{
		"event":       "kyc_rejected",
		"wallet":      wallet,
		"tier":        string(tier),
		"rejected_by": by,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"wallet":     wallet,
		"tier":       tier,
		"status":     rec.Status,
		"reason":     req.Reason,
		"rejectedAt": rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// ==============================================================================
// USER ENDPOINTS
// ==============================================================================

// Submit handles POST /api/v1/users/{wallet}/kyc/{tier}. The body is the
// tier's field map; field rules are enforced by the service.
func (h *KYCHandler) Submit(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	var data domain.KYCData
	if !decodeJSON(w, r, h.logger, &data) {
		return
	}

	rec, err := h.service.Submit(r.Context(), wallet, tier, data)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"id":      rec.ID,
		"tier":    rec.KYCType,
		"status":  rec.Status,
	})
}

// Upload handles POST /api/v1/users/{wallet}/files/{tier} with a multipart
// "file" part.
func (h *KYCHandler) Upload(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}

	// Allow some headroom over the file limit for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxFileBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, errors.ErrFileTooLarge.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unable to read file")
		return
	}

	name := filepath.Base(header.Filename)
	result, err := h.service.Upload(r.Context(), wallet, tier, name, header.Header.Get("Content-Type"), data)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("KYC document uploaded", map[string]interface{}{
		"event":  "kyc_file_uploaded",
		"wallet": wallet,
		"tier":   string(tier),
		"size":   len(data),
	})
	respondJSON(w, http.StatusCreated, result)
}

// DeleteFile handles DELETE /api/v1/users/{wallet}/files.
func (h *KYCHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	var req DeleteFileRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}
	if err := h.service.DeleteFile(r.Context(), wallet, req.Path); err != nil {
		if errors.Is(err, errors.ErrForeignPath) {
			respondError(w, http.StatusForbidden, "Path does not belong to this wallet")
			return
		}
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Dashboard handles GET /api/v1/users/{wallet}/dashboard.
func (h *KYCHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	d, err := h.service.Dashboard(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}
