package bridge

import "errors"

// Domain-specific errors for bridge operations.
var (
	// ErrRefreshDisabled is returned when a refresh is requested but refresh
	// is disabled or no appliance is configured.
	ErrRefreshDisabled = errors.New("bridge: refresh disabled")
)
