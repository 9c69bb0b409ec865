// Package apperr defines the error taxonomy shared by all services.
// Services wrap these sentinels with fmt.Errorf("%w: ...") so callers can
// classify outcomes with errors.Is and map them to transport responses.
package apperr

import "errors"

var (
	// ErrNotFound means a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint was violated (name, email,
	// or a permission's resource:action pair).
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized means a credential is missing, invalid, expired, or revoked.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is authenticated but lacks the required
	// capability, or attempted a protected system-role mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest means a referential or business-rule violation, e.g.
	// deleting a role still assigned to users.
	ErrBadRequest = errors.New("bad request")
	// ErrInternal means the store was unreachable or an unexpected fault occurred.
	// Only these are logged as operational errors.
	ErrInternal = errors.New("internal error")
)

// IsBusiness reports whether err is an expected business outcome rather than
// an operational fault.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrBadRequest)
}
