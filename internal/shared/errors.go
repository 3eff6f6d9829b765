package shared

import "errors"

// Error kinds recognised by the transport layer. Domain packages declare
// their own sentinel errors and wrap one of these so handlers can classify
// any failure with errors.Is without importing every domain package.
var (
	// ErrValidation indicates rejected input or a violated stock rule.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent write clash that survived retries.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDependency indicates a datastore or downstream service failure.
	ErrDependency = errors.New("dependency failure")
	// ErrInvalidCredentials indicates API key authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage returns an error message safe to show callers. Messages
// for recognised kinds pass through; anything else collapses to a generic
// message so internals never leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err.Error()
	case errors.Is(err, ErrDependency):
		return "a dependent service failed, please retry"
	default:
		return "internal error"
	}
}
