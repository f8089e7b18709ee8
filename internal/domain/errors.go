package domain

import "errors"

// Error kinds surfaced to callers before any network call is made.
var (
	ErrInvalidParameters    = errors.New("invalid parameters")
	ErrConfigurationMissing = errors.New("configuration missing")
)

// Error carries a user-facing message together with its kind.
// The message is what ends up in the "error" field of the response envelope.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// InvalidParameters builds an Error of kind ErrInvalidParameters.
func InvalidParameters(msg string) *Error {
	return &Error{Kind: ErrInvalidParameters, Message: msg}
}

// ConfigurationMissing builds an Error of kind ErrConfigurationMissing.
func ConfigurationMissing(msg string) *Error {
	return &Error{Kind: ErrConfigurationMissing, Message: msg}
}
