// ==============================================================================
// KYC FIELD VALIDATION - internal/kyc/validation.go
// ==============================================================================
// Cumulative per-tier rules: sepa re-runs base, aaa re-runs sepa.
// ==============================================================================

package kyc

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"sak/pkg/domain"
)

const dateLayout = "2006-01-02"

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)
	spacePattern = regexp.MustCompile(`\s`)
)

// Field error messages, keyed by what is wrong.
const (
	MsgFullNameRequired      = "Full name is required"
	MsgFullNameInvalid       = "Please enter your full name (first and last name)"
	MsgDateOfBirthRequired   = "Date of birth is required"
	MsgUnderage              = "You must be at least 18 years old"
	MsgCountryRequired       = "Country is required"
	MsgEmailRequired         = "Email is required"
	MsgEmailInvalid          = "Please enter a valid email address"
	MsgDocumentRequired      = "Document ID upload is required"
	MsgSelfieRequired        = "Selfie is required"
	MsgProofOfAddressMissing = "Proof of address is required"
	MsgIBANRequired          = "IBAN or bank account number is required"
	MsgIBANInvalid           = "Please enter a valid IBAN format"
	MsgAdditionalDocRequired = "Additional document validation is required"
	MsgProofOfFundsRequired  = "Proof of income/funds is required"
	MsgAMLRequired           = "AML screening must be completed"
	MsgUnknownTier           = "Unknown KYC level"
)

// FieldErrors maps a field name to its message. Empty means valid.
type FieldErrors map[string]string

// Fields returns the offending field names, sorted.
func (e FieldErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidationError carries the full field map out of operations that validate.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields.Fields(), ", "))
}

// Validate checks data against the tier's cumulative rule set using the current time.
func Validate(tier domain.KYCTier, data domain.KYCData) FieldErrors {
	return ValidateAt(tier, data, time.Now())
}

// ValidateAt is Validate with an explicit reference date for the age rule.
func ValidateAt(tier domain.KYCTier, data domain.KYCData, now time.Time) FieldErrors {
	d := data.Decode()
	switch tier {
	case domain.KYCTierBase:
		return ValidateBase(d.BaseData, now)
	case domain.KYCTierSepa:
		return ValidateSepa(d.SepaData, now)
	case domain.KYCTierAAA:
		return ValidateAaa(d, now)
	}
	return FieldErrors{"kycType": MsgUnknownTier}
}

func ValidateBase(d domain.BaseData, now time.Time) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(d.FullName) == "" {
		errs[domain.FieldFullName] = MsgFullNameRequired
	} else if !IsValidFullName(d.FullName) {
		errs[domain.FieldFullName] = MsgFullNameInvalid
	}

	if d.DateOfBirth == "" {
		errs[domain.FieldDateOfBirth] = MsgDateOfBirthRequired
	} else if !IsValidAge(d.DateOfBirth, now) {
		errs[domain.FieldDateOfBirth] = MsgUnderage
	}

	if d.Country == "" {
		errs[domain.FieldCountry] = MsgCountryRequired
	}

	if strings.TrimSpace(d.Email) == "" {
		errs[domain.FieldEmail] = MsgEmailRequired
	} else if !IsValidEmail(d.Email) {
		errs[domain.FieldEmail] = MsgEmailInvalid
	}

	if d.DocumentIDURL == "" {
		errs[domain.FieldDocumentIDURL] = MsgDocumentRequired
	}

	return errs
}

func ValidateSepa(d domain.SepaData, now time.Time) FieldErrors {
	errs := ValidateBase(d.BaseData, now)

	if d.SelfieURL == "" {
		errs[domain.FieldSelfieURL] = MsgSelfieRequired
	}
	if d.ProofOfAddressURL == "" {
		errs[domain.FieldProofOfAddressURL] = MsgProofOfAddressMissing
	}
	if strings.TrimSpace(d.IBAN) == "" {
		errs[domain.FieldIBAN] = MsgIBANRequired
	} else if !IsValidIBAN(d.IBAN) {
		errs[domain.FieldIBAN] = MsgIBANInvalid
	}

	return errs
}

func ValidateAaa(d domain.AaaData, now time.Time) FieldErrors {
	errs := ValidateSepa(d.SepaData, now)

	if d.AdditionalDocumentURL == "" {
		errs[domain.FieldAdditionalDocumentURL] = MsgAdditionalDocRequired
	}
	if d.ProofOfFundsURL == "" {
		errs[domain.FieldProofOfFundsURL] = MsgProofOfFundsRequired
	}
	if !d.AMLScreeningResult.Valid() {
		errs[domain.FieldAMLScreeningResult] = MsgAMLRequired
	}

	return errs
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidAge reports whether the person born on dob (YYYY-MM-DD) is at least 18 on now.
// Unparseable dates are not of age.
func IsValidAge(dob string, now time.Time) bool {
	birth, err := time.Parse(dateLayout, strings.TrimSpace(dob))
	if err != nil {
		return false
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age >= 18
}

// IsValidIBAN is a syntactic check only; the mod-97 checksum is not verified.
func IsValidIBAN(iban string) bool {
	clean := NormalizeIBAN(iban)
	return ibanPattern.MatchString(clean) && len(clean) >= 15 && len(clean) <= 34
}

func NormalizeIBAN(iban string) string {
	return strings.ToUpper(spacePattern.ReplaceAllString(iban, ""))
}

// IsValidFullName requires at least three characters and a space between words,
// so single-word legal names are rejected.
func IsValidFullName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return len(trimmed) >= 3 && strings.Contains(trimmed, " ")
}

// ==============================================================================
// FILE RULES
// ==============================================================================

type FileKind string

const (
	FileKindImage FileKind = "image"
	FileKindPDF   FileKind = "pdf"
	FileKindVideo FileKind = "video"
)

const DefaultMaxFileSizeMB = 10

var allowedExtensions = map[FileKind][]string{
	FileKindImage: {"jpg", "jpeg", "png", "gif"},
	FileKindPDF:   {"pdf"},
	FileKindVideo: {"mp4", "webm", "mov"},
}

// AllowedExtensions returns the extensions accepted for the given kinds.
func AllowedExtensions(kinds ...FileKind) []string {
	var out []string
	for _, k := range kinds {
		out = append(out, allowedExtensions[k]...)
	}
	return out
}

// ValidateFile returns a user-facing message, or "" when the file is acceptable.
func ValidateFile(name string, size int64, allowed []string, maxSizeMB int) string {
	if name == "" {
		return "No file selected"
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxFileSizeMB
	}
	if size > int64(maxSizeMB)*1024*1024 {
		return fmt.Sprintf("File size must be less than %dMB", maxSizeMB)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, a := range allowed {
		if ext != "" && ext == a {
			return ""
		}
	}
	return fmt.Sprintf("File type must be one of: %s", strings.Join(allowed, ", "))
}
