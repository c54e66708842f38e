package helpers

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground validator with game-domain rules
type CustomValidator struct {
	validate *validator.Validate
}

// NewCustomValidator creates a new custom validator with game-domain rules
func NewCustomValidator() *CustomValidator {
	v := validator.New()

	v.RegisterValidation("ad_type", validateAdType)
	v.RegisterValidation("mode_type", validateModeType)
	v.RegisterValidation("fingerprint", validateFingerprint)
	v.RegisterValidation("lang_code", validateLangCode)

	return &CustomValidator{validate: v}
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}

// validateAdType validates ad placement identifiers (lowercase slug)
func validateAdType(fl validator.FieldLevel) bool {
	adTypeRegex := regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)
	return adTypeRegex.MatchString(fl.Field().String())
}

// validateModeType validates game mode tier names
func validateModeType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "FREE", "PAID", "TOURNAMENT":
		return true
	}
	return false
}

// validateFingerprint validates device fingerprint hashes
func validateFingerprint(fl validator.FieldLevel) bool {
	fingerprintRegex := regexp.MustCompile(`^[A-Za-z0-9:_-]{8,128}$`)
	return fingerprintRegex.MatchString(fl.Field().String())
}

// validateLangCode validates two-letter language codes
func validateLangCode(fl validator.FieldLevel) bool {
	langRegex := regexp.MustCompile(`^[a-z]{2}$`)
	return langRegex.MatchString(fl.Field().String())
}
