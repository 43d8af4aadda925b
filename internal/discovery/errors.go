package discovery

import "errors"

// Domain-specific errors for discovery operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidEntity is returned when an entity lacks a field its kind requires.
	ErrInvalidEntity = errors.New("discovery: invalid entity")

	// ErrExcluded is returned when publishing an entity the exclusion filter rejects.
	ErrExcluded = errors.New("discovery: entity excluded")

	// ErrInvalidDocument is returned when a retained payload is not a discovery document.
	ErrInvalidDocument = errors.New("discovery: invalid document")

	// ErrPublishFailed is returned when a document could not be published or retracted.
	ErrPublishFailed = errors.New("discovery: publish failed")

	// ErrCollectFailed is returned when retained documents could not be enumerated.
	ErrCollectFailed = errors.New("discovery: collecting retained documents failed")
)
