package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired occurs when the tenant header is missing or invalid.
	ErrTenantRequired = errors.New("tenant id required")
	// ErrActorRequired occurs when the actor header is missing or invalid.
	ErrActorRequired = errors.New("actor id required")
)
