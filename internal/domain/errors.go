package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned when an identity cannot be used as a key.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrNoState is returned when an adjustment targets an identity that has
	// never drawn a card (or whose card expired).
	ErrNoState = errors.New("no card state for identity")

	// ErrNoActiveSession is returned when input arrives without a running
	// interactive session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionExpired is returned when the session deadline passed before
	// the input arrived. The session is gone afterwards.
	ErrSessionExpired = errors.New("session expired")

	// ErrRenderFailed matches every *RenderError via errors.Is.
	ErrRenderFailed = errors.New("render failed")
)

// ValidationError describes user input that was rejected without touching
// any state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RenderError wraps a renderer failure. The configuration change that
// preceded the render is kept; callers may retry the render.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRenderFailed) match.
func (e *RenderError) Is(target error) bool {
	return target == ErrRenderFailed
}
