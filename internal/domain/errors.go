package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrMalformedInput       = errors.New("malformed input")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDuplicateJoin        = errors.New("already joined")

	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrInvalidRole     = errors.New("invalid role")
)
