package process

import "errors"

var (
	// ErrNoBinary is returned when Run is called without an executable name.
	ErrNoBinary = errors.New("process: binary is required")

	// ErrStartFailed is returned when the executable could not be started.
	ErrStartFailed = errors.New("process: failed to start")

	// ErrExitStatus is returned when the command exits non-zero.
	ErrExitStatus = errors.New("process: non-zero exit status")

	// ErrTimeout is returned when the command exceeds its timeout and is killed.
	ErrTimeout = errors.New("process: timed out")
)
