// Package validation validates requests and configuration.
//
// Struct tags go through go-playground/validator with two extra tags:
// "release" (empty, "latest" or an 8-digit installer tag) and "argv" (a
// non-empty command vector whose first element is not blank).
//
//	type RunRequest struct {
//	    Release string `json:"release" validate:"release"`
//	}
//	err := validation.Validate(req)
//
// Rules that span fields use the collecting Validator:
//
//	v := validation.New()
//	v.Custom(!cfg.Auth.Enabled || cfg.Auth.Secret != "", "auth.secret", "is required when auth is enabled")
//	err := v.Validate()
package validation
