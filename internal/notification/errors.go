package notification

import "errors"

var (
	ErrNilHandler      = errors.New("notification: nil handler")
	ErrNilAction       = errors.New("notification: nil action")
	ErrInvalidKind     = errors.New("notification: invalid action kind")
	ErrHandlerMismatch = errors.New("notification: handler does not implement its kind")
)
