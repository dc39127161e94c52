package socket

import "sync"

// Subscription is a registered handler. Close releases it; calling Close more
// than once is harmless.
type Subscription struct {
	once    sync.Once
	release func()
}

// Close removes the handler.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.release)
}

// Subscribe registers h for event.
func (c *Client) Subscribe(event string, h Handler) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()

	return &Subscription{release: func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
		c.mu.Unlock()
	}}
}

// OnConnect registers fn to run after every successful (re)connect.
func (c *Client) OnConnect(fn func()) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.onConnect[id] = fn
	c.mu.Unlock()

	return &Subscription{release: func() {
		c.mu.Lock()
		delete(c.onConnect, id)
		c.mu.Unlock()
	}}
}

func (c *Client) fireConnect() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.onConnect))
	for _, fn := range c.onConnect {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Scope groups subscriptions so they can be released together, for example
// when a room is deactivated.
type Scope struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add keeps sub in the scope and returns it.
func (s *Scope) Add(sub *Subscription) *Subscription {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

// Len returns the number of live subscriptions in the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Release closes every subscription in the scope.
func (s *Scope) Release() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
