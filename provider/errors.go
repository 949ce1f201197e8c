package provider

import (
	"context"
	"errors"
	"fmt"
)

// Common provider errors
var (
	ErrNotFound      = errors.New("symbol not found")
	ErrNoData        = errors.New("no usable data")
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrBadStatus     = errors.New("unexpected HTTP status")
	ErrMalformed     = errors.New("malformed payload")
	ErrTimeout       = errors.New("request timeout")
	ErrNetworkError  = errors.New("network error")
)

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// NotFound is a shorthand for the common "nothing usable" answer
func NotFound(provider, symbol string) error {
	return NewProviderError(provider, "NOT_FOUND", fmt.Sprintf("no quote for %s", symbol), ErrNotFound)
}

// Malformed wraps a decode failure
func Malformed(provider string, err error) error {
	return NewProviderError(provider, "MALFORMED", "cannot decode payload", fmt.Errorf("%w: %v", ErrMalformed, err))
}

// IsTemporaryError checks if an error is temporary (network, timeout, 5xx)
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetworkError) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.Code {
		case "TIMEOUT", "NETWORK_ERROR", "SERVER_ERROR", "RATE_LIMIT":
			return true
		}
	}

	return false
}
