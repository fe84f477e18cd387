// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// KYC record errors
var (
	ErrAlreadyValidated  = errors.New("KYC already validated for this type")
	ErrKYCRecordNotFound = errors.New("KYC record not found")
	ErrInvalidTier       = errors.New("invalid kyc tier")
	ErrInvalidStatus     = errors.New("invalid kyc status")
	ErrUserNotFound      = errors.New("user not found")

	// File storage errors
	ErrUploadFailed       = errors.New("file upload failed")
	ErrDeleteFailed       = errors.New("file delete failed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileNotFound       = errors.New("file not found")
	ErrForeignPath        = errors.New("path outside user folder")

	// Wallet errors
	ErrWalletUnavailable = errors.New("Freighter wallet is not installed. Please install it from https://freighter.app")
	ErrUserDeclined      = errors.New("Connection request declined by user")
	ErrInvalidPublicKey  = errors.New("invalid stellar public key")
	ErrNotConnected      = errors.New("wallet not connected")
	ErrSessionClosed     = errors.New("wallet session closed")
	ErrConnectInProgress = errors.New("wallet connection already in progress")
	ErrConnectCancelled  = errors.New("wallet connection cancelled by disconnect")

	// Anchor wizard errors
	ErrDestinationNotVerified = errors.New("destination tier not verified")
	ErrAmountRequired         = errors.New("amount must be greater than zero")
	ErrNegativeAmount         = errors.New("amount cannot be negative")
	ErrInvalidStep            = errors.New("action not allowed at current step")
	ErrInvalidDestination     = errors.New("invalid destination")
	ErrBaseNotVerified        = errors.New("base KYC not verified")
	ErrIncompleteSubmission   = errors.New("verification submission incomplete")
	ErrVerificationInProgress = errors.New("verification already in progress")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrSessionNotFound        = errors.New("wizard session not found")
	ErrInvalidVariant         = errors.New("invalid wizard variant")

	// Verification errors
	ErrVerificationTimeout  = errors.New("verification timed out")
	ErrVerificationRejected = errors.New("verification rejected")

	// Anchor API errors
	ErrAnchorNotFound     = errors.New("anchor not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWebhookNotFound    = errors.New("webhook not found")
	ErrInvalidEvent       = errors.New("invalid webhook event")
	ErrDuplicateRequest   = errors.New("duplicate request in progress")
	ErrTokenRevoked       = errors.New("token revoked")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
