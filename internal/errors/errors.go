package errors

import (
	"errors"
	"fmt"
)

// Common error types for the auth gate
var (
	// Token validation errors
	ErrMalformedToken    = errors.New("malformed token")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrIssuerMismatch    = errors.New("issuer mismatch")
	ErrAudienceMismatch  = errors.New("audience mismatch")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenTooOld       = errors.New("token too old")
	ErrUnknownSigningKey = errors.New("unknown signing key")
	ErrJWKSUnavailable   = errors.New("jwks unavailable")

	// Token exchange errors
	ErrExchangeFailed = errors.New("token exchange failed")
	ErrProviderError  = errors.New("provider returned an error")

	// State errors
	ErrStateNotFound = errors.New("state not found")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Store errors
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")

	// General errors
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
