package sync

import (
	"sync"
)

// State is the sync cycle state machine position.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Status is the UI-facing snapshot of the current (or last) sync cycle.
// A terminal success/error value stays visible until the next cycle
// overwrites it.
type Status struct {
	State           State  `json:"status"`
	Message         string `json:"message"`
	Progress        int    `json:"progress"`
	TotalTemplates  int    `json:"totalTemplates"`
	SyncedTemplates int    `json:"syncedTemplates"`
	Error           string `json:"error,omitempty"`
}

// StatusStore is an observable holder for the sync status. Subscribers
// get every update on a buffered channel; slow subscribers miss updates
// rather than blocking the sync loop.
type StatusStore struct {
	mu      sync.RWMutex
	current Status
	nextID  int
	subs    map[int]chan Status
}

// NewStatusStore creates a status store in the idle state.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		current: Status{State: StateIdle, Message: "ready to sync"},
		subs:    make(map[int]chan Status),
	}
}

// Get returns the current status snapshot.
func (s *StatusStore) Get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription.
func (s *StatusStore) Subscribe() (<-chan Status, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Status, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// set replaces the status wholesale and notifies subscribers.
func (s *StatusStore) set(status Status) {
	s.mu.Lock()
	s.current = status
	s.broadcastLocked()
	s.mu.Unlock()
}

// update mutates the current status in place and notifies subscribers.
func (s *StatusStore) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.current)
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *StatusStore) broadcastLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.current:
		default:
		}
	}
}
