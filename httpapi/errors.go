package httpapi

import "errors"

var (
	// ErrBaseURLRequired is returned when the API base URL is empty or not absolute.
	ErrBaseURLRequired = errors.New("changesync httpapi: absolute base url is required")
	// ErrResourceRequired is returned when the resource path is empty.
	ErrResourceRequired = errors.New("changesync httpapi: resource is required")
	// ErrEntityIDRequired is returned when Update or Delete is called without an id.
	ErrEntityIDRequired = errors.New("changesync httpapi: entity id is required")
	// ErrStateRequired is returned when a Prober is created without a connectivity state.
	ErrStateRequired = errors.New("changesync httpapi: connectivity state is required")
)
