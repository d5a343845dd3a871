package changesync

import "sync"

// Connectivity reports whether the remote API is reachable.
type Connectivity interface {
	IsOnline() bool
	// Subscribe registers fn for online/offline transitions until unsubscribe is called.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ConnectivityState is a settable Connectivity. Probes and platform hooks call Set.
type ConnectivityState struct {
	mu     sync.RWMutex
	online bool
	next   int
	subs   map[int]func(bool)
}

var _ Connectivity = (*ConnectivityState)(nil)

// NewConnectivityState returns a state starting at online.
func NewConnectivityState(online bool) *ConnectivityState {
	return &ConnectivityState{online: online, subs: make(map[int]func(bool))}
}

// IsOnline implements Connectivity.
func (c *ConnectivityState) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.online
}

// Subscribe implements Connectivity.
func (c *ConnectivityState) Subscribe(fn func(bool)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Set updates the state and notifies subscribers when it changed.
func (c *ConnectivityState) Set(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()

		return
	}
	c.online = online
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
