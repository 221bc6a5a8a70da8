package ai

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network call when credentials or
// endpoints are missing.
var ErrNotConfigured = errors.New("ai collaborator is not configured")

// AuthError reports a credential or token exchange failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "ai auth: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError reports a failed request. Status is zero when no response
// was received.
type NetworkError struct {
	Status int
	Detail string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("ai request failed: %v", e.Err)
	}
	return fmt.Sprintf("ai request failed with status %d: %s", e.Status, e.Detail)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Message turns a collaborator error into text fit for an end user.
func Message(err error) string {
	var (
		ae *AuthError
		ne *NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "AI features are not configured."
	case errors.As(err, &ae):
		return "Could not authenticate with the AI service."
	case errors.As(err, &ne) && ne.Status != 0:
		return fmt.Sprintf("The AI service returned an error (%d): %s", ne.Status, ne.Detail)
	case errors.As(err, &ne):
		return "The AI service could not be reached."
	default:
		return "The AI request failed."
	}
}
