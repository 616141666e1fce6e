package credentials

import "errors"

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("provider not authenticated")
	ErrSessionClosed    = errors.New("session closed")
)
