package appliance

import "errors"

var (
	// ErrNotConfigured is returned by New when connection details are missing.
	ErrNotConfigured = errors.New("appliance: not configured")

	// ErrNoArgs is returned when a query or command has nothing to do.
	ErrNoArgs = errors.New("appliance: no arguments")

	// ErrQueryFailed is returned when the tool fails to answer a query.
	ErrQueryFailed = errors.New("appliance: query failed")

	// ErrInvalidResponse is returned when the tool prints something other than JSON.
	ErrInvalidResponse = errors.New("appliance: invalid response")

	// ErrCommandFailed is returned when a setting could not be written.
	ErrCommandFailed = errors.New("appliance: command failed")

	// ErrInvalidCommand is returned for command-topic payloads that cannot be parsed.
	ErrInvalidCommand = errors.New("appliance: invalid command")
)
