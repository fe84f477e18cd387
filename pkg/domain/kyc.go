// Package domain defines the core business entities for the SAK system.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ==============================================================================
// ENUMS & STATUS TYPES
// ==============================================================================

// KYCTier is a verification level. Tiers are cumulative: base ⊂ sepa ⊂ aaa.
type KYCTier string

const (
	KYCTierBase KYCTier = "base"
	KYCTierSepa KYCTier = "sepa"
	KYCTierAAA  KYCTier = "aaa"
)

// AllTiers lists tiers in ascending order.
var AllTiers = []KYCTier{KYCTierBase, KYCTierSepa, KYCTierAAA}

func ParseTier(s string) (KYCTier, error) {
	t := KYCTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown kyc tier %q", s)
	}
	return t, nil
}

func (t KYCTier) Valid() bool {
	return t.Rank() > 0
}

// Rank is 1 for base, 2 for sepa, 3 for aaa and 0 for anything else.
func (t KYCTier) Rank() int {
	switch t {
	case KYCTierBase:
		return 1
	case KYCTierSepa:
		return 2
	case KYCTierAAA:
		return 3
	}
	return 0
}

// Includes reports whether t's field set contains other's.
func (t KYCTier) Includes(other KYCTier) bool {
	return t.Valid() && other.Valid() && t.Rank() >= other.Rank()
}

func (t KYCTier) String() string { return string(t) }

// KYCStatus is the lifecycle state of a tier for one user.
// StatusNotSubmitted is never persisted: it is the absence of a record.
type KYCStatus string

const (
	StatusNotSubmitted KYCStatus = "not_submitted"
	StatusPending      KYCStatus = "pending"
	StatusValidated    KYCStatus = "validated"
	StatusRejected     KYCStatus = "rejected"
)

func ParseStatus(s string) (KYCStatus, error) {
	st := KYCStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusValidated, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown kyc status %q", s)
}

// AMLScreeningResult is the outcome of an AML screening.
type AMLScreeningResult string

const (
	AMLResultOK      AMLScreeningResult = "OK"
	AMLResultPending AMLScreeningResult = "PENDING"
	AMLResultFailed  AMLScreeningResult = "FAILED"
)

func (r AMLScreeningResult) Valid() bool {
	switch r {
	case AMLResultOK, AMLResultPending, AMLResultFailed:
		return true
	}
	return false
}

// ==============================================================================
// TIER DATA
// ==============================================================================

// Field names as they appear in the stored document.
const (
	FieldFullName              = "fullName"
	FieldDateOfBirth           = "dateOfBirth"
	FieldCountry               = "country"
	FieldEmail                 = "email"
	FieldDocumentIDURL         = "documentIdUrl"
	FieldSelfieURL             = "selfieUrl"
	FieldProofOfAddressURL     = "proofOfAddressUrl"
	FieldIBAN                  = "iban"
	FieldAdditionalDocumentURL = "additionalDocumentUrl"
	FieldProofOfFundsURL       = "proofOfFundsUrl"
	FieldAMLScreeningResult    = "amlScreeningResult"
	FieldAMLScreeningDate      = "amlScreeningDate"
)

type BaseData struct {
	FullName      string `json:"fullName"`
	DateOfBirth   string `json:"dateOfBirth"`
	Country       string `json:"country"`
	Email         string `json:"email"`
	DocumentIDURL string `json:"documentIdUrl"`
}

type SepaData struct {
	BaseData
	SelfieURL         string `json:"selfieUrl"`
	ProofOfAddressURL string `json:"proofOfAddressUrl"`
	IBAN              string `json:"iban"`
}

type AaaData struct {
	SepaData
	AdditionalDocumentURL string             `json:"additionalDocumentUrl"`
	ProofOfFundsURL       string             `json:"proofOfFundsUrl"`
	AMLScreeningResult    AMLScreeningResult `json:"amlScreeningResult"`
	AMLScreeningDate      string             `json:"amlScreeningDate,omitempty"`
}

// KYCData is the opaque key/value document stored with a record.
type KYCData map[string]interface{}

// Text returns the value at key as a string, or "" when absent or not a string.
func (d KYCData) Text(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

func (d KYCData) Clone() KYCData {
	out := make(KYCData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Decode reads the document as the widest tier shape. Missing fields stay empty;
// values of the wrong type are ignored.
func (d KYCData) Decode() AaaData {
	var out AaaData
	out.FullName = d.Text(FieldFullName)
	out.DateOfBirth = d.Text(FieldDateOfBirth)
	out.Country = d.Text(FieldCountry)
	out.Email = d.Text(FieldEmail)
	out.DocumentIDURL = d.Text(FieldDocumentIDURL)
	out.SelfieURL = d.Text(FieldSelfieURL)
	out.ProofOfAddressURL = d.Text(FieldProofOfAddressURL)
	out.IBAN = d.Text(FieldIBAN)
	out.AdditionalDocumentURL = d.Text(FieldAdditionalDocumentURL)
	out.ProofOfFundsURL = d.Text(FieldProofOfFundsURL)
	out.AMLScreeningResult = AMLScreeningResult(d.Text(FieldAMLScreeningResult))
	out.AMLScreeningDate = d.Text(FieldAMLScreeningDate)
	return out
}

// ToData converts any of the tier shapes into a document.
func ToData(v interface{}) (KYCData, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := KYCData{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ==============================================================================
// RECORDS
// ==============================================================================

// KYCRecord is the persisted result of one submission for one (user, tier).
type KYCRecord struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	KYCType     KYCTier    `json:"kyc_type" db:"kyc_type"`
	Status      KYCStatus  `json:"status" db:"status"`
	Data        KYCData    `json:"data" db:"-"`
	ValidatedAt *time.Time `json:"validated_at,omitempty" db:"validated_at"`
	ReviewedBy  *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes *string    `json:"review_notes,omitempty" db:"review_notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

func (r *KYCRecord) IsValidated() bool {
	return r != nil && r.Status == StatusValidated
}

// TierStatuses maps every tier to its current status for one user.
type TierStatuses map[KYCTier]KYCStatus

// StatusesFromRecords fills in not_submitted for tiers without a record.
func StatusesFromRecords(records []*KYCRecord) TierStatuses {
	out := TierStatuses{}
	for _, t := range AllTiers {
		out[t] = StatusNotSubmitted
	}
	for _, r := range records {
		if r != nil && r.KYCType.Valid() {
			out[r.KYCType] = r.Status
		}
	}
	return out
}

// KYCStatusEvent is emitted whenever a record changes status.
type KYCStatusEvent struct {
	Event          string    `json:"event"`
	Wallet         string    `json:"wallet"`
	Tier           KYCTier   `json:"tier"`
	NewStatus      KYCStatus `json:"newStatus"`
	PreviousStatus KYCStatus `json:"previousStatus"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	EventKYCValidated = "kyc.validated"
	EventKYCRejected  = "kyc.rejected"
	EventKYCUpdated   = "kyc.updated"
)

// EventForStatus picks the event name announced for a transition into status.
func EventForStatus(status KYCStatus) string {
	switch status {
	case StatusValidated:
		return EventKYCValidated
	case StatusRejected:
		return EventKYCRejected
	}
	return EventKYCUpdated
}

func ValidEvent(name string) bool {
	switch name {
	case EventKYCValidated, EventKYCRejected, EventKYCUpdated:
		return true
	}
	return false
}
