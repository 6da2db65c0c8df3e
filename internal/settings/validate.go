package settings

import (
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/officeboard/panel/internal/apperr"
)

// ValidateForm checks the settings form input. The returned error carries
// the validation kind and never leaves the form/API layer.
func ValidateForm(address, header, secret string) error {
	err := validation.Errors{
		"address": validation.Validate(address, validation.Required, validation.By(checkServerAddress)),
		"header":  validation.Validate(header, validation.Required, validation.Length(1, 255)),
		"secret":  validation.Validate(secret, validation.Required, validation.Length(1, 255)),
	}.Filter()
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid settings", err)
	}
	return nil
}

// checkServerAddress accepts absolute http(s) URLs without a trailing
// slash.
func checkServerAddress(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil // Required covers emptiness.
	}
	u, err := url.Parse(s)
	if err != nil {
		return validation.NewError("validation_address", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_address", "must use http or https")
	}
	if u.Host == "" {
		return validation.NewError("validation_address", "must be an absolute URL")
	}
	if strings.HasSuffix(s, "/") {
		return validation.NewError("validation_address", "must not end with a slash")
	}
	return nil
}
