package usecase

import "errors"

var (
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnsupportedFile is returned by Classify for a disallowed file extension.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrProcessingFailed wraps every classifier failure. Callers show a
	// generic message and never the underlying cause.
	ErrProcessingFailed = errors.New("error processing image")
)

// ValidationError carries a message meant for the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
