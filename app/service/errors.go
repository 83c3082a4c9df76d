package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package that callers are expected to handle wraps one of these.
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
)

var (
	ErrUsernameTaken           = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrEmailTaken              = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrUnknownUser             = fmt.Errorf("%w: unknown user", ErrUnauthorized)
	ErrInvalidCredentials      = fmt.Errorf("%w: bad credentials", ErrUnauthorized)
	ErrEmailNotConfirmed       = fmt.Errorf("%w: email not confirmed", ErrUnauthorized)
	ErrInvalidToken            = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrTokenRevoked            = fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	ErrPasswordMismatch        = fmt.Errorf("%w: old password is incorrect", ErrUnauthorized)
	ErrUserNotFound            = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrContactNotFound         = fmt.Errorf("%w: contact not found", ErrNotFound)
	ErrWeakPassword            = fmt.Errorf("%w: password does not meet policy requirements", ErrValidation)
	ErrInvalidRole             = fmt.Errorf("%w: unknown role", ErrValidation)
	ErrAccountAlreadyConfirmed = fmt.Errorf("%w: account is already confirmed", ErrConflict)
)

// IsValidation reports whether err is a client input problem rather than a server fault.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
