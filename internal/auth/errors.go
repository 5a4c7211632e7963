package auth

import (
	"errors"
	"net/http"

	"github.com/wayfarer/backend/internal/identity"
)

var (
	// ErrSessionNotFound indicates the client context holds no stored session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCodeResent reports that verification could not complete and a fresh code
	// was emailed. It is not a hard failure: the user should enter the new code.
	ErrCodeResent = errors.New("a new verification code has been sent")
	// ErrInvalidInput indicates a missing or malformed email or code.
	ErrInvalidInput = errors.New("invalid input")
)

// AuthError is a failure the user can act on. Message is safe to show in the UI.
type AuthError struct {
	Message string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// userFacing converts a non-transient provider rejection into an AuthError. Other
// errors are returned unchanged.
func userFacing(err error) error {
	var perr *identity.ProviderError
	if !errors.As(err, &perr) || perr.Transient() {
		return err
	}

	switch {
	case perr.Status == http.StatusTooManyRequests:
		return &AuthError{Message: "Too many attempts. Please wait a moment and try again.", Status: http.StatusTooManyRequests, Err: err}
	case perr.Code == "otp_expired" || perr.Status == http.StatusForbidden || perr.Status == http.StatusUnauthorized:
		return &AuthError{Message: "That code is invalid or has expired. Request a new one and try again.", Status: http.StatusUnauthorized, Err: err}
	default:
		msg := perr.Message
		if msg == "" {
			msg = "We could not verify that code."
		}
		return &AuthError{Message: msg, Status: http.StatusBadRequest, Err: err}
	}
}
