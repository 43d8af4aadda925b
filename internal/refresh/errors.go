package refresh

import "errors"

// Domain-specific errors for refresh operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStopped is returned when triggering a coordinator that has been stopped.
	ErrStopped = errors.New("refresh: coordinator stopped")

	// ErrGroupFailed wraps the failure of one state group query.
	ErrGroupFailed = errors.New("refresh: group query failed")

	// ErrPublishFailed is returned when a snapshot could not be published.
	ErrPublishFailed = errors.New("refresh: state publish failed")

	// ErrNoGroups is returned when an executor is built without groups.
	ErrNoGroups = errors.New("refresh: no state groups configured")

	// ErrMissingDependency is returned when an executor is built without
	// its querier, bus or state topic function.
	ErrMissingDependency = errors.New("refresh: missing dependency")
)
