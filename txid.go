package changesync

import (
	"fmt"

	"github.com/google/uuid"
)

// TransactionIDGenerator produces transaction ids.
type TransactionIDGenerator interface {
	NewTransactionID() (string, error)
}

// UUIDv7Generator generates time-ordered UUIDv7 transaction ids.
type UUIDv7Generator struct{}

// NewTransactionID implements TransactionIDGenerator.
func (UUIDv7Generator) NewTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}

	return id.String(), nil
}

// TransactionIDFunc adapts a function to TransactionIDGenerator.
type TransactionIDFunc func() (string, error)

// NewTransactionID implements TransactionIDGenerator.
func (fn TransactionIDFunc) NewTransactionID() (string, error) {
	return fn()
}
