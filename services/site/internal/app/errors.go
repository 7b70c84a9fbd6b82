package app

import "errors"

var (
	// ErrInvalidVisitor indicates a malformed X-Visitor-Id value.
	ErrInvalidVisitor = errors.New("invalid visitor id")
	// ErrSpeechDisabled is returned when no speech backend is configured.
	ErrSpeechDisabled = errors.New("speech synthesis not configured")
)
