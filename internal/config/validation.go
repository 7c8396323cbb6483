package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// validate is the singleton validator instance
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

func validateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return errors.Newf(errors.ErrCodeInvalidConfig, "%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value()).
			WithDetail("field", e.Field())
	}
	return errors.Wrap(err, errors.ErrCodeInvalidConfig, "validation failed")
}
