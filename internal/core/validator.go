package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"occasions/internal/occasion"
	"occasions/internal/types"
)

// ValidationError describes a single field failure returned to clients
// under details.validation_errors.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects every field error from one validation run.
type ValidationResult struct {
	Errors []ValidationError `json:"errors,omitempty"`
}

// IsValid reports whether no field errors were recorded.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the occasion-specific tags:
//
//   - is_timezone:   an IANA zone name that the clock can load
//   - occasion_date: a real YYYY-MM-DD calendar date
//
// Field names in errors use the json tag, so clients see first_name rather
// than FirstName.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("is_timezone", validateTimezone)
	_ = v.RegisterValidation("occasion_date", validateOccasionDate)

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s and returns an *types.AppError on failure. The
// error code follows the first failing field; every failure is listed in
// Details["validation_errors"].
func (v *Validator) ValidateStruct(s any) error {
	result := v.Check(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// Check runs the same checks as ValidateStruct but returns the raw result
// instead of an error.
func (v *Validator) Check(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: programming error (nil or non-struct).
		v.logger.Error("struct validation could not run", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: "request could not be validated",
		})
		return result
	}

	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(tagToErrorCode(fe.Tag())),
			Message: fieldMessage(fe),
		})
	}
	return result
}

// tagToErrorCode maps a validator tag to the client-facing error code.
func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_if", "required_without":
		return types.ErrCodeValidationMissingField
	case "min", "max", "len":
		return types.ErrCodeValidationFieldLength
	case "is_timezone":
		return types.ErrCodeValidationInvalidTimezone
	case "occasion_date":
		return types.ErrCodeValidationInvalidDate
	default:
		return types.ErrCodeValidationInvalidField
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "is_timezone":
		return fmt.Sprintf("%s must be an IANA time zone name", field)
	case "occasion_date":
		return fmt.Sprintf("%s must be a calendar date in YYYY-MM-DD format", field)
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func validateTimezone(fl validator.FieldLevel) bool {
	_, err := occasion.LoadZone(fl.Field().String())
	return err == nil
}

func validateOccasionDate(fl validator.FieldLevel) bool {
	_, err := types.ParseOccasionDate(fl.Field().String())
	return err == nil
}
