package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors.
	//
	// ErrAuth is fatal until the operator runs the device flow again.
	ErrAuth     = fmt.Errorf("authentication failed")
	ErrTimedOut = fmt.Errorf("operation timed out")

	// API and service errors
	ErrTransientNetwork = fmt.Errorf("transient network error")
	ErrUpstreamRejected = fmt.Errorf("upstream rejected request")
	ErrNotAvailable     = fmt.Errorf("not available")
	ErrTrackNotFound    = fmt.Errorf("track not found")

	// Storage errors
	ErrStorageIO    = fmt.Errorf("storage i/o error")
	ErrItemTooLarge = fmt.Errorf("item too large for cache")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
