package analyses

import "errors"

var (
	// ErrUnauthenticated means the request carries no caller identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrUnauthorized means the caller does not own the target record.
	ErrUnauthorized = errors.New("not authorized")
	// ErrNotFound covers both missing records and unresolvable blobs.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyScored is returned when a terminal record would transition again.
	ErrAlreadyScored = errors.New("analysis already scored")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
