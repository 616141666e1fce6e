// Package oauth implements the GitHub and ClickUp login flows that feed the
// pending credential table.
package oauth

import "errors"

var (
	// ErrInvalidState covers malformed, expired, forged and replayed state
	// tokens.
	ErrInvalidState = errors.New("invalid or expired OAuth state")

	// ErrTooManyStates is returned by Issue while the outstanding login
	// table is full.
	ErrTooManyStates = errors.New("too many OAuth logins in progress")

	ErrMissingCode = errors.New("missing authorization code")

	// ErrExchangeFailed wraps any failure between receiving a code and
	// holding usable credentials.
	ErrExchangeFailed = errors.New("OAuth code exchange failed")

	ErrProviderNotConfigured = errors.New("OAuth provider not configured")

	// ErrAttemptNotFound is returned for unknown, expired or foreign device
	// login attempts.
	ErrAttemptNotFound = errors.New("device login attempt not found")

	ErrDeviceAccessDenied = errors.New("device login was denied by the user")
	ErrDeviceExpired      = errors.New("device code expired")
)
