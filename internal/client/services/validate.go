package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks v against its struct tags and turns the first failure
// into a message a person can act on. The returned error wraps
// common.ErrorValidation.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "email":
		msg = "invalid email"
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return fmt.Errorf("%w: %s", common.ErrorValidation, msg)
}

// userMessage strips the sentinel prefix from validation errors so toasts
// read naturally.
func userMessage(err error) string {
	if errors.Is(err, common.ErrorValidation) {
		return strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")
	}
	return err.Error()
}
