// ==============================================================================
// VALIDATOR PACKAGE - pkg/validator/validator.go
// ==============================================================================
package validator

import (
	"fmt"
	"html"
	"reflect"
	"strings"

	"sak/pkg/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	// Report JSON names so errors line up with request fields.
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "email":
					msg = "Invalid email address"
				case "url", "http_url":
					msg = "Invalid URL"
				case "min":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "max":
					msg = fmt.Sprintf("Must be at most %s", e.Param())
				case "gte":
					msg = fmt.Sprintf("Must be greater than or equal to %s", e.Param())
				case "stellar_key":
					msg = "Invalid Stellar public key"
				case "kyc_tier":
					msg = "Invalid KYC tier"
				case "kyc_event":
					msg = "Invalid event"
				case "dive":
					msg = "Invalid list entry"
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Var validates a single value against a tag.
func (v *Validator) Var(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/lt checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("stellar_key", func(fl validator.FieldLevel) bool {
		return domain.IsValidStellarPublicKey(fl.Field().String())
	})

	_ = v.validate.RegisterValidation("kyc_tier", func(fl validator.FieldLevel) bool {
		return domain.KYCTier(fl.Field().String()).Valid()
	})

	_ = v.validate.RegisterValidation("kyc_event", func(fl validator.FieldLevel) bool {
		return domain.ValidEvent(fl.Field().String())
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
