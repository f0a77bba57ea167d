package feed

import (
	"errors"
	"fmt"

	"dash/internal/store"
)

// Error definitions
var (
	// ErrAuthExpired reports that the upstream rejected the stored access
	// token. Distinct from transport failures so callers can trigger a
	// credential refresh.
	ErrAuthExpired = errors.New("access token expired")

	// ErrRefreshFailed reports that renewal is no longer possible: either the
	// token exchange failed or the refreshed token was rejected again.
	ErrRefreshFailed = errors.New("access token could not be refreshed")

	// ErrMissingPermissions reports that the upstream is reachable but the
	// user lacks the scope for the requested resource.
	ErrMissingPermissions = errors.New("missing permissions for requested content")

	ErrNotConnected      = errors.New("service is not connected")
	ErrAlreadyConnected  = errors.New("service is already connected")
	ErrUnknownService    = errors.New("unknown service")
	ErrUnknownSourceKind = errors.New("unknown source kind")
)

// ServiceError tags a sync failure with the service it came from, so the
// route layer can prompt a reconnect for that service instead of showing a
// generic failure.
type ServiceError struct {
	Service store.Service
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service.Display(), e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
