package mailer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error classes returned by the dispatcher. Match them with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrTemplate      = errors.New("template error")
	ErrMiddleware    = errors.New("middleware error")
	ErrNotFound      = errors.New("not found")
	ErrDelivery      = errors.New("delivery error")
)

// ValidationError maps a message field to the reason it was rejected.
type ValidationError map[string]string

// Error implements the error interface.
func (v ValidationError) Error() string {
	if len(v) == 0 {
		return ErrValidation.Error()
	}

	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v[field])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Is reports ErrValidation so callers don't need the concrete type.
func (v ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DeliveryError is returned once every permitted attempt has failed.
type DeliveryError struct {
	Attempts int
	// Code is the transport's classification of the last failure, e.g. "auth".
	Code string
	// Temporary reports that the last failure looked transient.
	Temporary bool
	Err       error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s: %d attempt(s) failed", ErrDelivery, e.Attempts)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the last transport failure.
func (e *DeliveryError) Unwrap() error { return e.Err }

// Is reports ErrDelivery.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
