package changesync

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Priority tiers, lower is more urgent.
const (
	PriorityUrgent     = 1
	PriorityCritical   = 2
	PriorityHigh       = 3
	PriorityNormal     = 5
	PriorityLow        = 7
	PriorityBackground = 10
)

const defaultLongOffline = 24 * time.Hour

var priorityTiers = []int{
	PriorityUrgent,
	PriorityCritical,
	PriorityHigh,
	PriorityNormal,
	PriorityLow,
	PriorityBackground,
}

func defaultEntityPriorities() map[string]int {
	return map[string]int{
		EntityOrder:     PriorityCritical,
		EntityPayment:   PriorityCritical,
		EntityCustomer:  PriorityHigh,
		EntityProduct:   PriorityHigh,
		EntityInventory: PriorityHigh,
		EntityInvoice:   PriorityHigh,
		EntityLog:       PriorityBackground,
		EntityAudit:     PriorityBackground,
		EntityStatistic: PriorityBackground,
		EntityReport:    PriorityBackground,
	}
}

// PriorityManager ranks changes and persists administrative overrides.
type PriorityManager struct {
	store       PriorityStore
	logger      Logger
	defaults    map[string]int
	boostTypes  []string
	longOffline time.Duration
}

// PriorityOption configures a PriorityManager.
type PriorityOption func(*PriorityManager)

// WithEntityPriority sets the default rank of an entity type.
func WithEntityPriority(entityType string, rank int) PriorityOption {
	return func(m *PriorityManager) {
		if rank > 0 {
			m.defaults[entityType] = rank
		}
	}
}

// WithPriorityLogger sets the logger for override failures.
func WithPriorityLogger(logger Logger) PriorityOption {
	return func(m *PriorityManager) {
		m.logger = logger
	}
}

// WithOfflineBoost sets how long the client must be offline before the given entity types are
// raised to PriorityUrgent on resume.
func WithOfflineBoost(after time.Duration, entityTypes ...string) PriorityOption {
	return func(m *PriorityManager) {
		m.longOffline = after
		m.boostTypes = append([]string(nil), entityTypes...)
	}
}

// NewPriorityManager constructs a manager. store may be nil when overrides are not needed.
func NewPriorityManager(store PriorityStore, opts ...PriorityOption) *PriorityManager {
	m := &PriorityManager{
		store:       store,
		logger:      NopLogger{},
		defaults:    defaultEntityPriorities(),
		boostTypes:  []string{EntityCustomer, EntityOrder, EntityPayment},
		longOffline: defaultLongOffline,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// PriorityFor returns the rank of a change to entityType with operation op.
// Deletes move one tier up so remote state is not orphaned behind queued writes.
func (m *PriorityManager) PriorityFor(entityType string, op Operation) int {
	rank, ok := m.defaults[entityType]
	if !ok {
		rank = PriorityNormal
	}
	if op == OperationDelete {
		return bumpTier(rank)
	}

	return rank
}

// bumpTier returns the closest tier more urgent than rank.
func bumpTier(rank int) int {
	idx := sort.SearchInts(priorityTiers, rank)
	if idx == 0 {
		return PriorityUrgent
	}

	return priorityTiers[idx-1]
}

// SetPriority overrides the rank of one change. Failures are logged and returned.
func (m *PriorityManager) SetPriority(ctx context.Context, id int64, rank int) error {
	if rank <= 0 {
		return ErrInvalidPriority
	}
	if m.store == nil {
		return nil
	}
	if err := m.store.SetPriority(ctx, id, rank); err != nil {
		m.logger.Warn("changesync set priority failed", "id", id, "priority", rank, "err", err)

		return fmt.Errorf("set priority of change %d: %w", id, err)
	}

	return nil
}

// SetPriorityForEntityType overrides the rank of every unsynced change of entityType.
func (m *PriorityManager) SetPriorityForEntityType(ctx context.Context, entityType string, rank int) error {
	if entityType == "" {
		return ErrEntityTypeRequired
	}
	if rank <= 0 {
		return ErrInvalidPriority
	}
	if m.store == nil {
		return nil
	}
	n, err := m.store.SetPriorityByEntityType(ctx, entityType, rank)
	if err != nil {
		m.logger.Warn("changesync set entity priority failed", "entity_type", entityType, "priority", rank, "err", err)

		return fmt.Errorf("set priority of %s changes: %w", entityType, err)
	}
	m.logger.Debug("changesync entity priority updated", "entity_type", entityType, "priority", rank, "changes", n)

	return nil
}

// BoostAfterOffline raises business-critical pending changes after a long offline period.
// It reports whether a boost was applied.
func (m *PriorityManager) BoostAfterOffline(ctx context.Context, offline time.Duration) bool {
	if m.longOffline <= 0 || offline < m.longOffline || len(m.boostTypes) == 0 {
		return false
	}
	m.logger.Info("changesync boosting priorities after long offline period", "offline", offline.String())
	for _, entityType := range m.boostTypes {
		_ = m.SetPriorityForEntityType(ctx, entityType, PriorityUrgent)
	}

	return true
}
