package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrNotInitialized means no configuration exists yet (run `tunctl init`).
	ErrNotInitialized = errors.New("tunctl is not initialized")

	// ErrStoreCorrupt means a local state file exists but cannot be parsed.
	// It is fatal to every operation until the user explicitly resets;
	// corrupt state is never silently overwritten.
	ErrStoreCorrupt = errors.New("local state is corrupt")

	// ErrUnauthorized indicates a missing, invalid, or under-scoped API token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the referenced zone, tunnel, or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRemoteTransient marks a remote failure (network, 5xx, rate limit)
	// that did not resolve within the client's bounded retries.
	ErrRemoteTransient = errors.New("transient remote failure")

	// ErrRemoteRejected means the remote API rejected the request as invalid.
	// Retrying without changing the request will not help.
	ErrRemoteRejected = errors.New("request rejected by remote API")

	// ErrServiceFailure means an OS service manager command failed.
	ErrServiceFailure = errors.New("service manager failure")

	// ErrDaemonUnreachable means the tunnel daemon did not answer its local
	// metrics endpoint.
	ErrDaemonUnreachable = errors.New("daemon unreachable")

	// ErrOperationBusy is returned when an operation is requested for a
	// tunnel that already has one in flight. Requests are rejected, never
	// silently queued.
	ErrOperationBusy = errors.New("operation already in progress")
)

// OpError wraps a failure with the tunnel and operation step it occurred in.
type OpError struct {
	Tunnel string
	Step   string
	Err    error
}

func (e *OpError) Error() string {
	if e.Tunnel != "" {
		return fmt.Sprintf("tunnel %s: %s: %v", e.Tunnel, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
