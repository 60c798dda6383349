// Package common defines sentinel errors shared by the registration service
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Registration errors.
	ErrDuplicateRegistration = errors.New("already registered for this event")
	ErrDuplicateTransaction  = errors.New("transaction id has already been used")
	ErrPaymentNotFound       = errors.New("payment record not found")
	ErrSettingNotFound       = errors.New("setting not found")

	// External collaborator errors.
	ErrAssetHost     = errors.New("asset host error")
	ErrConfiguration = errors.New("credentials not configured")

	// Boundary errors.
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("too many registration attempts")
)

// UserError carries a message meant for the end user while still matching
// its Kind through errors.Is.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }

// NewUserError builds a UserError of the given kind.
func NewUserError(kind error, msg string) error {
	return &UserError{Kind: kind, Message: msg}
}

// UserMessage returns the user-facing message stored in err, if any.
func UserMessage(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message, true
	}
	return "", false
}
