// Package businessflow contains the core business logic for short link
// creation, resolution and statistics.
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Resolution errors, surfaced to clients as distinct outcomes
	ErrCodeNotFound = errors.New("short code not found")
	ErrLinkDisabled = errors.New("link is disabled")

	// Creation errors
	ErrInvalidTargetURL = errors.New("target URL is not a valid absolute URL")
	ErrInvalidAlias     = errors.New("custom alias has an invalid format")
	ErrAliasTaken       = errors.New("custom alias already exists")
	ErrInvalidExpiry    = errors.New("expiry must be in the future")
	ErrExhaustedRetries = errors.New("code generation retries exhausted")
	ErrOwnerIDRequired  = errors.New("owner id is required")
	ErrLinkAccessDenied = errors.New("link does not belong to this owner")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCodeNotFound(err error) bool {
	return errors.Is(err, ErrCodeNotFound)
}

func IsLinkDisabled(err error) bool {
	return errors.Is(err, ErrLinkDisabled)
}

func IsInvalidTargetURL(err error) bool {
	return errors.Is(err, ErrInvalidTargetURL)
}

func IsInvalidAlias(err error) bool {
	return errors.Is(err, ErrInvalidAlias)
}

func IsAliasTaken(err error) bool {
	return errors.Is(err, ErrAliasTaken)
}

func IsInvalidExpiry(err error) bool {
	return errors.Is(err, ErrInvalidExpiry)
}

func IsExhaustedRetries(err error) bool {
	return errors.Is(err, ErrExhaustedRetries)
}

func IsLinkAccessDenied(err error) bool {
	return errors.Is(err, ErrLinkAccessDenied)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
