package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"cropsense/internal/types"
)

// Validator wraps go-playground/validator for request payload validation at
// the API boundary. Domain entities carry their own Validate methods; this
// wrapper covers transport-level struct tags (required, min, max) on request
// DTOs and maps failures to structured AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator instance.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its validate tags.
// On failure it returns a *types.AppError with per-field details so clients
// can see exactly which fields were rejected.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalidErr *validator.InvalidValidationError
	if errors.As(err, &invalidErr) {
		// Non-struct passed in; a programming error, not client input.
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"invalid validation target",
			err,
		)
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unexpected validation failure",
			err,
		)
	}

	details := make(map[string]any, len(validationErrs))
	missingOnly := true
	for _, fe := range validationErrs {
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			details[field] = "field is required"
		} else {
			missingOnly = false
			details[field] = "failed constraint: " + fe.Tag()
		}
	}

	code := types.ErrCodeValidationMissingField
	if !missingOnly {
		code = types.ErrCodeValidationInvalidJSON
	}

	return types.NewAppErrorWithDetails(
		code,
		"request validation failed",
		err,
		details,
	)
}
