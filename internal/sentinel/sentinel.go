package sentinel

import "errors"

// Sentinel errors shared by the stores, the access engine and the services.
// Layers wrap them with context; transports translate them with errors.Is.
var (
	// ErrNoActiveSalt means ingest cannot proceed until an operator initialises or rotates a salt.
	ErrNoActiveSalt = errors.New("no active salt")
	// ErrInvalidInput marks malformed input such as an empty identifier or a bad CSV row.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated means no caller identity could be resolved for the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller lacks the permission required for the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrOutOfScope means the caller holds the permission but not the requested scope.
	ErrOutOfScope = errors.New("out of scope")
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the operation would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrStorage wraps transaction or connectivity failures of the durable store.
	ErrStorage = errors.New("storage failure")
)

// IsDenial reports whether err is a policy denial.
func IsDenial(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrOutOfScope)
}
