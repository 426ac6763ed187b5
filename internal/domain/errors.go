package domain

import (
	"errors"
	"fmt"
)

// Domain Const errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrQueueEmpty       = errors.New("queue is empty")
	ErrProviderError    = errors.New("external provider error")
	ErrUnknownBackend   = errors.New("unknown provider backend")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ProviderError is returned by drivers when the provider rejects or fails a send.
// Retryable is false when repeating the same call cannot succeed.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

func (e ProviderError) Unwrap() error {
	return ErrProviderError
}

func NewProviderError(statusCode int, message string, retryable bool) ProviderError {
	return ProviderError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
	}
}

// IsPermanent reports whether err carries a non-retryable provider rejection
func IsPermanent(err error) bool {
	var providerErr ProviderError
	if errors.As(err, &providerErr) {
		return !providerErr.Retryable
	}
	return false
}
