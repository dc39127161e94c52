// Package connectivity tracks whether the live event channel is usable.
package connectivity

import "sync"

// State is the connection phase of the socket.
type State int

const (
	StateConnecting State = iota
	StateOnline
	StateReconnecting
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Listener is called with the new state after every transition.
type Listener func(state State, online bool)

// Tracker exposes an advisory online flag. It never blocks anything by itself.
type Tracker struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewTracker starts in the connecting state, which counts as offline.
func NewTracker() *Tracker {
	return &Tracker{listeners: make(map[int]Listener)}
}

// Online reports whether the socket is connected.
func (t *Tracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateOnline
}

// State returns the current phase.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connecting marks the first dial attempt.
func (t *Tracker) Connecting() { t.set(StateConnecting) }

// Connected marks a successful (re)connect.
func (t *Tracker) Connected() { t.set(StateOnline) }

// Disconnected marks a dropped connection the socket client will retry.
func (t *Tracker) Disconnected() { t.set(StateReconnecting) }

// ReconnectExhausted marks that the socket client gave up.
func (t *Tracker) ReconnectExhausted() { t.set(StateOffline) }

// Subscribe registers fn and returns a function that removes it.
func (t *Tracker) Subscribe(fn Listener) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) set(state State) {
	t.mu.Lock()
	if t.state == state {
		t.mu.Unlock()
		return
	}
	t.state = state
	listeners := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()

	online := state == StateOnline
	for _, l := range listeners {
		l(state, online)
	}
}
