package classifier

import "errors"

// Failure kinds returned by Classify. Callers compare with errors.Is.
var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrDecode           = errors.New("image decode failed")
	ErrInference        = errors.New("inference failed")
)

// Error carries the failure kind together with its cause.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg += " for " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or nil when err is not a classifier failure.
func KindOf(err error) error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return nil
}
