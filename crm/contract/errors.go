package contract

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("contact not found")
	ErrUnsupportedProvider = errors.New("unsupported crm provider")
	ErrNoCredential        = errors.New("no crm credential connected")

	// ErrNoOpUpdate signals an apply-updates call where nothing was left
	// to send after filtering. It is a distinguishable outcome, not a
	// failure; callers must not surface it as one.
	ErrNoOpUpdate = errors.New("no field updates to apply")
)

// APIError is a non-success HTTP response from a provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api status=%d body=%s", e.Status, e.Body)
}

// TransportError is a network-level failure with no HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TokenRefreshError means the token endpoint rejected or failed a
// refresh. It is fatal for the call that triggered it and is never
// itself retried.
type TokenRefreshError struct {
	Reason string
	Err    error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %s", e.Reason)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}
