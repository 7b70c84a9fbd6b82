package admin

import "errors"

var (
	ErrUnauthorized    = errors.New("admin authentication required")
	ErrInvalidPassword = errors.New("invalid admin password")
	ErrNotConfigured   = errors.New("admin credential not configured")
	ErrOrderNotFound   = errors.New("order not found")
)
