package changesync

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps entity types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry populated with handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}

	return r
}

// Register adds h, replacing any handler previously registered for the same entity type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return ErrHandlerRequired
	}
	if h.EntityType() == "" {
		return ErrEntityTypeRequired
	}

	r.mu.Lock()
	r.handlers[h.EntityType()] = h
	r.mu.Unlock()

	return nil
}

// Get returns the handler for entityType.
func (r *Registry) Get(entityType string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[entityType]
	r.mu.RUnlock()

	return h, ok
}

// Has reports whether entityType has a handler.
func (r *Registry) Has(entityType string) bool {
	_, ok := r.Get(entityType)

	return ok
}

// EntityTypes returns the registered entity types in sorted order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)

	return types
}

// Dispatch syncs change through its handler. It always returns one of the three results:
// a missing handler, a panic or an out-of-range result all become ResultRejected.
func (r *Registry) Dispatch(ctx context.Context, change Change) (Result, error) {
	h, ok := r.Get(change.EntityType)
	if !ok {
		return ResultRejected, fmt.Errorf("%w: %q", ErrHandlerNotFound, change.EntityType)
	}

	return callHandler(ctx, h, change)
}

func callHandler(ctx context.Context, h Handler, change Change) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ResultRejected
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	result, err = h.SyncChange(ctx, change)
	if !result.valid() {
		return ResultRejected, fmt.Errorf("%w: %v (cause: %v)", ErrInvalidResult, result, err)
	}

	return result, err
}
