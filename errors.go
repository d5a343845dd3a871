package changesync

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("changesync batch size must be positive")
	// ErrEntityTypeRequired is returned when NewChange.EntityType is empty.
	ErrEntityTypeRequired = errors.New("changesync entity type is required")
	// ErrEntityIDRequired is returned when NewChange.EntityID is empty.
	ErrEntityIDRequired = errors.New("changesync entity id is required")
	// ErrInvalidOperation is returned for operations other than INSERT, UPDATE and DELETE.
	ErrInvalidOperation = errors.New("changesync operation must be INSERT, UPDATE or DELETE")
	// ErrPayloadRequired is returned when NewChange.Payload is empty.
	ErrPayloadRequired = errors.New("changesync payload is required")
	// ErrInvalidPayload is returned when NewChange.Payload is not valid JSON.
	ErrInvalidPayload = errors.New("changesync payload must be valid JSON")
	// ErrInvalidPriority is returned for negative or zero priority overrides.
	ErrInvalidPriority = errors.New("changesync priority must be positive")
	// ErrUnknownStatus is returned when a status name cannot be parsed.
	ErrUnknownStatus = errors.New("changesync unknown status")
	// ErrEmptyTransaction is returned when a transaction has no operations.
	ErrEmptyTransaction = errors.New("changesync transaction has no operations")
	// ErrTransactionIDRequired is returned when a transaction query has no id.
	ErrTransactionIDRequired = errors.New("changesync transaction id is required")
	// ErrChangeNotFound is returned when a change id does not exist.
	ErrChangeNotFound = errors.New("changesync change not found")
	// ErrHandlerNotFound indicates that no handler is registered for an entity type.
	ErrHandlerNotFound = errors.New("changesync no handler registered for entity type")
	// ErrHandlerRequired is returned when registering a nil handler.
	ErrHandlerRequired = errors.New("changesync handler is required")
	// ErrHandlerPanic indicates a handler panicked while syncing a change.
	ErrHandlerPanic = errors.New("changesync handler panic")
	// ErrUnsupportedOperation is returned by handlers for operations they do not implement.
	ErrUnsupportedOperation = errors.New("changesync unsupported operation")
	// ErrInvalidResult indicates a handler returned a result outside the known set.
	ErrInvalidResult = errors.New("changesync handler returned an invalid result")
	// ErrPassInProgress is returned when a processing pass is already running.
	ErrPassInProgress = errors.New("changesync processing pass already in progress")
	// ErrInvalidTransition is returned when a lifecycle call does not fit the current state.
	ErrInvalidTransition = errors.New("changesync invalid state transition")
	// ErrOffline is returned by SyncNow when connectivity is down.
	ErrOffline = errors.New("changesync remote is offline")
	// ErrRetentionInvalid is returned when a maintenance retention is not positive.
	ErrRetentionInvalid = errors.New("changesync retention must be positive")
	// ErrCleanupLimitInvalid is returned when a maintenance batch limit is negative.
	ErrCleanupLimitInvalid = errors.New("changesync cleanup limit must be non-negative")
)
