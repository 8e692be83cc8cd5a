package core

import "errors"

// Validation errors
var (
	ErrInvalidKey      = errors.New("sitepipe: invalid key (must be a hostname such as example.com)")
	ErrKeyRequired     = errors.New("sitepipe: key is required")
	ErrKeyTooLong      = errors.New("sitepipe: key too long")
	ErrPayloadTooLarge = errors.New("sitepipe: payload exceeds size limit")
	ErrInvalidPayload  = errors.New("sitepipe: payload must be a JSON object")
	ErrInvalidStatus   = errors.New("sitepipe: unknown job status")
)

// Store and lifecycle errors
var (
	ErrJobNotFound       = errors.New("sitepipe: job not found")
	ErrInvalidTransition = errors.New("sitepipe: invalid job status transition")
	ErrJobNotOwned       = errors.New("sitepipe: job not owned by this worker")
	ErrStoreUnavailable  = errors.New("sitepipe: job store unavailable")
)

// Progress errors
var (
	ErrSessionNotFound  = errors.New("sitepipe: progress session not found")
	ErrSlowSubscriber   = errors.New("sitepipe: subscriber too slow")
	ErrSubscriberClosed = errors.New("sitepipe: subscriber closed")
)

// IsValidation reports whether err was caused by bad submission input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrKeyRequired) ||
		errors.Is(err, ErrKeyTooLong) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidStatus)
}
