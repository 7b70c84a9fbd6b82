package session

import "errors"

var (
	ErrInvalidIdentity  = errors.New("name and a valid email are required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordMismatch = errors.New("password mismatch on registration")
)
