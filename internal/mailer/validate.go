package mailer

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var envelopeValidator = validator.New(validator.WithRequiredStructEnabled())

// validateEnvelope checks the mandatory roles and that some body exists.
func validateEnvelope(env *Envelope) error {
	err := envelopeValidator.Struct(env)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[strings.ToLower(fe.Field())] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param() + " address"
	case "required_without":
		return "text, html or template is required"
	default:
		return "failed " + fe.Tag()
	}
}
