package changesync

import (
	"encoding/json"
	"time"
)

// Operation is the kind of mutation a change carries.
type Operation string

const (
	// OperationInsert creates the entity remotely.
	OperationInsert Operation = "INSERT"
	// OperationUpdate updates the remote entity.
	OperationUpdate Operation = "UPDATE"
	// OperationDelete removes the remote entity.
	OperationDelete Operation = "DELETE"
)

// Valid reports whether the operation is one of the supported kinds.
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Entity types produced by the point-of-sale domain.
const (
	EntityCustomer  = "customer"
	EntityProduct   = "product"
	EntityInventory = "inventory"
	EntityOrder     = "order"
	EntityPayment   = "payment"
	EntityInvoice   = "invoice"
	EntityStore     = "store"
	EntityUser      = "user"
	EntityCategory  = "category"
	EntityVariant   = "variant"
	EntityLog       = "log"
	EntityAudit     = "audit"
	EntityStatistic = "statistic"
	EntityReport    = "report"
)

// Change is a durable record of one local mutation waiting to be (or already) synced.
type Change struct {
	// ID increases strictly in creation order.
	ID            int64
	EntityType    string
	EntityID      string
	Operation     Operation
	Payload       json.RawMessage
	TransactionID string
	Status        Status
	RetryCount    int
	// NextRetryAt is zero when the change is eligible immediately.
	NextRetryAt time.Time
	// Priority ranks urgency, lower is more urgent.
	Priority  int
	CreatedAt time.Time
	// SyncedAt is set only when the change reached StatusSuccess.
	SyncedAt time.Time
}

// Eligible reports whether the change may be dispatched at now.
func (c Change) Eligible(now time.Time) bool {
	switch {
	case c.Status == StatusPending:
		return true
	case c.Status.Waiting():
		return c.NextRetryAt.IsZero() || !c.NextRetryAt.After(now)
	default:
		return false
	}
}

// NewChange describes a mutation to be recorded in the change log.
type NewChange struct {
	EntityType string
	EntityID   string
	Operation  Operation
	// Payload is sent to the remote API as-is and must be valid JSON.
	Payload json.RawMessage
	// TransactionID is optional, an empty value makes the change its own transaction.
	TransactionID string
	// Priority is optional, zero means the PriorityManager decides.
	Priority int
}

// Validate checks required fields and JSON validity.
func (c NewChange) Validate() error {
	return ValidateNewChange(c)
}

// ValidateNewChange validates a change before it is written to the store.
func ValidateNewChange(c NewChange) error {
	if c.EntityType == "" {
		return ErrEntityTypeRequired
	}
	if c.EntityID == "" {
		return ErrEntityIDRequired
	}
	if !c.Operation.Valid() {
		return ErrInvalidOperation
	}
	if c.Priority < 0 {
		return ErrInvalidPriority
	}
	if len(c.Payload) == 0 {
		return ErrPayloadRequired
	}
	if !json.Valid(c.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

func changeIDs(changes []Change) []int64 {
	ids := make([]int64, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.ID)
	}

	return ids
}
