package auth

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Outcomes of a failed exchange. Every error returned by Service is either
// a *core.ValidationError or an *Error whose Kind is one of these.
var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountInactive      = errors.New("this account is not active")
	ErrInvalidOtp           = errors.New("invalid or expired code")
	ErrInvalidJoinCode      = errors.New("invalid join code")
	ErrNetwork              = errors.New("unable to reach the server, please try again")
	ErrAuthorizationExpired = errors.New("your session has expired, please sign in again")
)

// Error is a classified exchange failure.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// APIError is an error envelope returned by the remote API.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Authenticated is set when the failed request carried a bearer token.
	Authenticated bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unauthorized reports whether an authenticated request was rejected for its token.
func (e *APIError) Unauthorized() bool {
	return e.Authenticated && e.Status == http.StatusUnauthorized
}

// TransportError is returned when the remote API could not be reached or answered unintelligibly.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "api: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuthorizationExpired reports whether err means the session's token is no longer accepted.
func IsAuthorizationExpired(err error) bool {
	if errors.Is(err, ErrAuthorizationExpired) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// classify maps a raw API error to the exchange's taxonomy; rejected is the
// outcome of a client-side (4xx) rejection for this exchange.
func classify(err, rejected error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &Error{Kind: ErrNetwork, Cause: err}
	}
	switch {
	case apiErr.Unauthorized():
		return &Error{Kind: ErrAuthorizationExpired, Cause: err}
	case apiErr.Status == http.StatusForbidden:
		return &Error{Kind: ErrAccountInactive, Cause: err}
	case apiErr.Status >= 400 && apiErr.Status < 500:
		return &Error{Kind: rejected, Cause: err}
	default:
		return &Error{Kind: ErrNetwork, Cause: err}
	}
}
