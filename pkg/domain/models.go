package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is identified by a Stellar public key and auto-created on first sight.
type User struct {
	ID               uuid.UUID `json:"id" db:"id"`
	StellarPublicKey string    `json:"stellar_public_key" db:"stellar_public_key"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// StellarKeyLength is the length of an encoded Stellar account ID.
const StellarKeyLength = 56

// IsValidStellarPublicKey is a format check only: a leading G and 56 characters.
func IsValidStellarPublicKey(key string) bool {
	return strings.HasPrefix(key, "G") && len(key) == StellarKeyLength
}

// Anchor is an institution consuming KYC status through the API.
// APIKeyIndex is a keyed hash of the API key used for lookup; the bcrypt
// APIKeyHash is what authenticates.
type Anchor struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	APIKeyIndex string    `json:"-" db:"api_key_index"`
	APIKeyHash  string    `json:"-" db:"api_key_hash"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Webhook is an anchor's subscription to KYC status events.
type Webhook struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AnchorID  uuid.UUID `json:"anchor_id" db:"anchor_id"`
	URL       string    `json:"url" db:"url"`
	Events    []string  `json:"events" db:"-"`
	Secret    string    `json:"-" db:"secret"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subscribes reports whether the webhook listens for the event.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// TierMetadata is the non-PII view of a tier exposed to anchors.
type TierMetadata struct {
	Status             KYCStatus  `json:"status"`
	DocumentType       string     `json:"documentType,omitempty"`
	IssuanceCountry    string     `json:"issuanceCountry,omitempty"`
	VerificationMethod string     `json:"verificationMethod,omitempty"`
	SubmittedAt        *time.Time `json:"submittedAt,omitempty"`
	ValidatedAt        *time.Time `json:"validatedAt,omitempty"`
}
