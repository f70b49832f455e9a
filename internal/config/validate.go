package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vango-go/terminal/internal/errors"
	"github.com/vango-go/terminal/pkg/streamvar"
)

// RegisterCustomValidators registers the terminal-specific rules.
func RegisterCustomValidators(v *validator.Validate) error {
	// upload_prefix: a relative URL path prefix, see streamvar.NormalizePrefix
	if err := v.RegisterValidation("upload_prefix", validateUploadPrefix); err != nil {
		return fmt.Errorf("register upload_prefix validator: %w", err)
	}
	return nil
}

// validateUploadPrefix rejects absolute URLs and prefixes that normalize to
// nothing.
func validateUploadPrefix(fl validator.FieldLevel) bool {
	prefix := fl.Field().String()
	if strings.Contains(prefix, "://") || strings.ContainsAny(prefix, "?#") {
		return false
	}
	return streamvar.NormalizePrefix(prefix) != "/"
}

// Validate checks struct tags and cross-field rules. A failure is an E401
// error listing every offending field.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return invalid(formatValidationErrors(err))
	}
	if err := v.Var(c.Upload.Prefix, "upload_prefix"); err != nil {
		return invalid(fmt.Sprintf("Upload.Prefix %q is not a relative path prefix", c.Upload.Prefix))
	}

	if c.Upload.Store == UploadS3 && c.Upload.S3.Bucket == "" {
		return invalid("Upload.S3.Bucket is required when Upload.Store is s3")
	}
	if c.Session.Store == StoreSQL && c.Session.SQLTable != "" && !validTableName(c.Session.SQLTable) {
		return invalid(fmt.Sprintf("Session.SQLTable %q must be a plain identifier", c.Session.SQLTable))
	}
	if c.Session.CleanupInterval > c.Session.MaxInactive {
		return invalid("Session.CleanupInterval must not exceed Session.MaxInactive")
	}
	return nil
}

func invalid(detail string) error {
	return errors.New(errors.CodeConfigInvalid).Wrap(stderrors.New(detail))
}

// validTableName accepts identifiers made of letters, digits and
// underscores, as the SQL store interpolates the name into statements.
func validTableName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}

// formatValidationErrors joins validator errors into one readable message.
func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return strings.Join(messages, "; ")
}

// formatSingleValidationError creates a message for a single field.
func formatSingleValidationError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, strings.Replace(e.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
