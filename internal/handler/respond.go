// Package handler provides the HTTP handlers of the SAK anchor API.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"sak/internal/anchor"
	"sak/internal/kyc"
	"sak/pkg/errors"
	"sak/pkg/logger"
	"sak/pkg/validator"
)

const maxJSONBody = 2 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}

// decodeJSON reads a size-limited JSON body into v, writing the 400 itself
// when the body is missing or malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, log logger.Logger, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		log.Warn("Invalid request body", map[string]interface{}{
			"error":    err.Error(),
			"endpoint": r.URL.Path,
		})
		respondError(w, http.StatusBadRequest, "Invalid request body format")
		return false
	}
	return true
}

// parseAndValidateRequest decodes the body into req and runs struct validation.
func parseAndValidateRequest(w http.ResponseWriter, r *http.Request, val *validator.Validator, log logger.Logger, req interface{}) bool {
	if !decodeJSON(w, r, log, req) {
		return false
	}
	if errs := val.ValidateStructured(req); errs != nil {
		respondValidationErrors(w, errs)
		return false
	}
	return true
}

// respondServiceError maps domain errors onto HTTP statuses. Anything it does
// not recognise is logged and reported as a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	var validation *kyc.ValidationError
	if errors.As(err, &validation) {
		respondValidationErrors(w, validation.Fields)
		return
	}
	var rejection *kyc.FileRejection
	if errors.As(err, &rejection) {
		respondError(w, http.StatusBadRequest, rejection.Message)
		return
	}
	var transition *kyc.TransitionError
	if errors.As(err, &transition) {
		respondError(w, http.StatusConflict, transition.Error())
		return
	}
	var alert *anchor.AlertError
	if errors.As(err, &alert) {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error": alert.Message,
			"alert": true,
		})
		return
	}

	switch {
	case errors.Is(err, errors.ErrKYCRecordNotFound),
		errors.Is(err, errors.ErrUserNotFound),
		errors.Is(err, errors.ErrSessionNotFound),
		errors.Is(err, errors.ErrWebhookNotFound),
		errors.Is(err, errors.ErrAnchorNotFound),
		errors.Is(err, errors.ErrFileNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrAlreadyValidated),
		errors.Is(err, errors.ErrInvalidStep),
		errors.Is(err, errors.ErrBaseNotVerified),
		errors.Is(err, errors.ErrDestinationNotVerified),
		errors.Is(err, errors.ErrVerificationInProgress),
		errors.Is(err, errors.ErrConnectInProgress),
		errors.Is(err, errors.ErrConnectCancelled):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errors.ErrInvalidPublicKey),
		errors.Is(err, errors.ErrInvalidTier),
		errors.Is(err, errors.ErrInvalidStatus),
		errors.Is(err, errors.ErrInvalidVariant),
		errors.Is(err, errors.ErrInvalidDestination),
		errors.Is(err, errors.ErrAmountRequired),
		errors.Is(err, errors.ErrNegativeAmount),
		errors.Is(err, errors.ErrIncompleteSubmission),
		errors.Is(err, errors.ErrInvalidEvent),
		errors.Is(err, errors.ErrFileTooLarge),
		errors.Is(err, errors.ErrFileTypeNotAllowed),
		errors.Is(err, errors.ErrUserDeclined),
		errors.Is(err, errors.ErrNotConnected):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errors.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, errors.ErrWalletUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error("Request failed", map[string]interface{}{
			"error":    err.Error(),
			"method":   r.Method,
			"endpoint": r.URL.Path,
		})
		respondError(w, http.StatusInternalServerError, "Something went wrong, please try again")
	}
}
