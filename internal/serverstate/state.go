// Package serverstate tracks whether the invoker accepts new invocations.
package serverstate

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status values reported by the invoker.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
)

// State holds the invoker status and draining flag. All fields are updated
// together so callers always observe a consistent snapshot.
type State struct {
	Status   string    `json:"status"`
	Draining bool      `json:"draining"`
	Function string    `json:"function,omitempty"`
	Since    time.Time `json:"since"`
}

// Store defines how the state is persisted. Implementations may keep it in
// memory or in an external service such as Redis, so that replicas of the same
// function can be inspected together.
type Store interface {
	Load() State
	Store(State)
}

var (
	mu     sync.Mutex
	active Store = NewMemoryStore()
)

// UseStore replaces the active Store. It is safe for concurrent use.
func UseStore(s Store) {
	if s == nil {
		return
	}
	mu.Lock()
	active = s
	mu.Unlock()
}

func current() Store {
	mu.Lock()
	defer mu.Unlock()
	return active
}

// memoryStore implements Store using an atomic.Value.
type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

func update(fn func(*State)) {
	mu.Lock()
	defer mu.Unlock()
	st := active.Load()
	fn(&st)
	st.Since = time.Now().UTC()
	active.Store(st)
}

// SetState updates the status string.
func SetState(status string) {
	update(func(st *State) { st.Status = status })
}

// SetFunction records the name of the served function.
func SetFunction(name string) {
	update(func(st *State) { st.Function = name })
}

// GetState returns the current status.
func GetState() string {
	return current().Load().Status
}

// Snapshot returns the full current state.
func Snapshot() State {
	return current().Load()
}

// StartDrain marks the invoker as draining.
func StartDrain() {
	update(func(st *State) {
		st.Draining = true
		st.Status = StatusDraining
	})
}

// IsDraining reports whether the invoker is draining.
func IsDraining() bool {
	return current().Load().Draining
}

// IsReady reports whether new invocations are accepted.
func IsReady() bool {
	st := current().Load()
	return st.Status == StatusReady && !st.Draining
}
