package reconciliation

import "errors"

// Domain failures. Their messages are the stable codes returned to callers
// in Result.Error.
var (
	ErrNotFound       = errors.New("NotFound")
	ErrAlreadyMatched = errors.New("AlreadyMatched")
	ErrNotMatched     = errors.New("NotMatched")
	ErrIntegrity      = errors.New("IntegrityError")
	ErrIgnored        = errors.New("Ignored")
	ErrNotIgnored     = errors.New("NotIgnored")
	ErrInvalidRequest = errors.New("InvalidRequest")
)

// IsDomainError reports whether err is one of the failures above, as
// opposed to a store or infrastructure error.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyMatched, ErrNotMatched, ErrIntegrity,
		ErrIgnored, ErrNotIgnored, ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
