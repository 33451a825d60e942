package dpc

import "errors"

var (
	// The level is outside the scheduler range or the procedure is nil.
	ErrInvalidParameter = errors.New("dpc: invalid parameter")

	// No free entry is available and the pool could not grow.
	ErrOutOfResources = errors.New("dpc: out of resources")

	// DispatchAll found nothing to run. Callers treat it as success with no
	// work done.
	ErrNotFound = errors.New("dpc: not found")
)
