package chat

import "errors"

// Error taxonomy for the messaging subsystem. Every operation failure wraps
// exactly one of these sentinels so callers can map it to a transport-level
// response with errors.Is.
var (
	// ErrUnauthenticated means the caller presented no valid credential.
	ErrUnauthenticated = errors.New("chat: unauthenticated")

	// ErrForbidden means the relationship predicate denied the action or the
	// caller does not own the resource.
	ErrForbidden = errors.New("chat: forbidden")

	// ErrNotFound means the message or peer does not exist.
	ErrNotFound = errors.New("chat: not found")

	// ErrInvalidArgument means the input was malformed (empty content,
	// unknown kind, self-addressed message).
	ErrInvalidArgument = errors.New("chat: invalid argument")

	// ErrInternal means the storage layer failed; the operation had no
	// partial effect.
	ErrInternal = errors.New("chat: internal error")
)

// ErrorCode returns the short machine-readable code for an error, suitable
// for the live path's error events and the API's structured failures.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
