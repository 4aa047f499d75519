package service

import "errors"

// Input errors. Their messages are shown to API callers as-is.
var (
	ErrInvalidName     = errors.New("App name must be at least 2 characters")
	ErrDuplicateName   = errors.New("App name already exists")
	ErrAppNotFound     = errors.New("App not found")
	ErrInvalidDuration = errors.New("Invalid duration")
	ErrKeyNotFound     = errors.New("Key not found")
	ErrInvalidFormat   = errors.New("Invalid key format: use X and - only")
	ErrInvalidDocument = errors.New("Invalid import document")
	ErrKeySpaceFull    = errors.New("No unused keys left for this key format")
)

// Authentication errors.
var (
	ErrUnauthenticated    = errors.New("Missing app credentials")
	ErrInvalidCredentials = errors.New("Invalid app credentials")
	ErrAdminRequired      = errors.New("admin token required")
	ErrInvalidToken       = errors.New("invalid admin token")
)

// IsInputError reports whether err is a caller mistake that should be
// returned as a soft failure rather than an internal error.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrInvalidName, ErrDuplicateName, ErrAppNotFound, ErrInvalidDuration,
		ErrKeyNotFound, ErrInvalidFormat, ErrInvalidDocument, ErrKeySpaceFull,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
