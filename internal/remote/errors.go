package remote

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidCredentials indicates the email/password pair did not match an identity.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotConfirmed indicates the identity exists but has not confirmed its email.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrSessionExpired indicates the session token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)
