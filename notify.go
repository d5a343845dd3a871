package changesync

import "sync"

// Notifier announces that new changes were durably written.
// Delivery is at-least-once and carries no payload, subscribers re-read the store.
type Notifier interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Broadcaster is an in-process Notifier. Subscribers are called synchronously and must not block.
type Broadcaster struct {
	mu   sync.RWMutex
	next int
	subs map[int]func()
}

var _ Notifier = (*Broadcaster)(nil)

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func())}
}

// Subscribe registers fn until the returned function is called.
func (b *Broadcaster) Subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Notify calls every subscriber.
func (b *Broadcaster) Notify() {
	b.mu.RLock()
	subs := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}
