package validation

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/mmrunner/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// releasePattern matches the date-stamped nightly tags published for the
// installer ("20250310").
var releasePattern = regexp.MustCompile(`^[0-9]{8}$`)

// LatestRelease selects the newest installer build.
const LatestRelease = "latest"

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Field names in messages follow the json tag, then mapstructure,
		// then snake_case.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "mapstructure"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					break
				}
				if name != "" {
					return name
				}
			}
			return toSnakeCase(fld.Name)
		})

		_ = validate.RegisterValidation("release", func(fl validator.FieldLevel) bool {
			return IsRelease(fl.Field().String())
		})
		_ = validate.RegisterValidation("argv", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.Slice || f.Len() == 0 {
				return false
			}
			return strings.TrimSpace(f.Index(0).String()) != ""
		})
	})
	return validate
}

// IsRelease reports whether tag names an installer release. Empty means
// latest.
func IsRelease(tag string) bool {
	return tag == "" || tag == LatestRelease || releasePattern.MatchString(tag)
}

// Validate validates a struct using struct tags such as
// `validate:"required,release"`.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("validation failed").WithCause(err)
	}

	fieldErrors := make([]FieldError, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fieldName := fieldPath(e)
		message := formatValidationError(e)
		fieldErrors = append(fieldErrors, FieldError{Field: fieldName, Message: message})
		messages = append(messages, fieldName+": "+message)
	}

	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{
		"fields": fieldErrors,
	}
	return appErr
}

// fieldPath drops the root struct name from the namespace so nested config
// fields read as "runner.command".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + e.Param()
	case "release":
		return "must be \"latest\" or an 8-digit release tag"
	case "argv":
		return "must name an executable"
	default:
		return "is invalid"
	}
}

// toSnakeCase converts a field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
