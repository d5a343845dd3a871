package changesync

import (
	"context"
	"fmt"
)

// TransactionManager records groups of changes that must be synced as a unit.
type TransactionManager struct {
	store      TransactionStore
	priorities *PriorityManager
	ids        TransactionIDGenerator
	notifier   *Broadcaster
}

// TransactionOption configures a TransactionManager.
type TransactionOption func(*TransactionManager)

// WithTransactionIDs replaces the UUIDv7 transaction id generator.
func WithTransactionIDs(gen TransactionIDGenerator) TransactionOption {
	return func(m *TransactionManager) {
		m.ids = gen
	}
}

// WithTransactionPriorities sets the manager used to rank new changes.
func WithTransactionPriorities(p *PriorityManager) TransactionOption {
	return func(m *TransactionManager) {
		m.priorities = p
	}
}

// WithTransactionNotifier sets the broadcaster fired after every successful insert.
func WithTransactionNotifier(b *Broadcaster) TransactionOption {
	return func(m *TransactionManager) {
		m.notifier = b
	}
}

// NewTransactionManager constructs a manager over store.
func NewTransactionManager(store TransactionStore, opts ...TransactionOption) *TransactionManager {
	if store == nil {
		panic("changesync: nil TransactionStore")
	}
	m := &TransactionManager{store: store}
	for _, opt := range opts {
		opt(m)
	}
	if m.ids == nil {
		m.ids = UUIDv7Generator{}
	}
	if m.priorities == nil {
		m.priorities = NewPriorityManager(nil)
	}

	return m
}

// CreateTransaction records ops under one fresh transaction id in a single storage transaction.
// Either every change is recorded as pending or none is.
func (m *TransactionManager) CreateTransaction(ctx context.Context, ops []NewChange) (string, error) {
	if len(ops) == 0 {
		return "", ErrEmptyTransaction
	}
	txID, err := m.ids.NewTransactionID()
	if err != nil {
		return "", err
	}

	changes := make([]NewChange, len(ops))
	for i, op := range ops {
		op.TransactionID = txID
		if err := m.prepare(&op); err != nil {
			return "", fmt.Errorf("operation %d: %w", i, err)
		}
		changes[i] = op
	}

	if _, err := m.store.InsertBatch(ctx, changes); err != nil {
		return "", fmt.Errorf("create transaction %s: %w", txID, err)
	}
	m.notify()

	return txID, nil
}

// TrackChange records a single change. Without a transaction id it forms its own transaction.
func (m *TransactionManager) TrackChange(ctx context.Context, change NewChange) (Change, error) {
	if change.TransactionID == "" {
		txID, err := m.ids.NewTransactionID()
		if err != nil {
			return Change{}, err
		}
		change.TransactionID = txID
	}
	if err := m.prepare(&change); err != nil {
		return Change{}, err
	}

	inserted, err := m.store.InsertBatch(ctx, []NewChange{change})
	if err != nil {
		return Change{}, fmt.Errorf("track change: %w", err)
	}
	m.notify()

	return inserted[0], nil
}

func (m *TransactionManager) prepare(change *NewChange) error {
	if err := ValidateNewChange(*change); err != nil {
		return err
	}
	if change.Priority == 0 {
		change.Priority = m.priorities.PriorityFor(change.EntityType, change.Operation)
	}

	return nil
}

func (m *TransactionManager) notify() {
	if m.notifier != nil {
		m.notifier.Notify()
	}
}

// GetChanges returns the members of transactionID in id order.
func (m *TransactionManager) GetChanges(ctx context.Context, transactionID string) ([]Change, error) {
	if transactionID == "" {
		return nil, ErrTransactionIDRequired
	}

	return m.store.ChangesByTransaction(ctx, transactionID)
}

// UpdateStatus sets status on every member of transactionID.
func (m *TransactionManager) UpdateStatus(ctx context.Context, transactionID string, status Status) error {
	if transactionID == "" {
		return ErrTransactionIDRequired
	}
	if _, err := m.store.UpdateTransactionStatus(ctx, transactionID, status); err != nil {
		return fmt.Errorf("update transaction %s: %w", transactionID, err)
	}

	return nil
}

// IsComplete reports whether no member of transactionID has a status other than status.
func (m *TransactionManager) IsComplete(ctx context.Context, transactionID string, status Status) (bool, error) {
	if transactionID == "" {
		return false, ErrTransactionIDRequired
	}
	n, err := m.store.CountTransactionNotInStatus(ctx, transactionID, status)
	if err != nil {
		return false, fmt.Errorf("check transaction %s: %w", transactionID, err)
	}

	return n == 0, nil
}
