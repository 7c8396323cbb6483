package driver

import (
	"sync"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// ServerState is the lifecycle position of one share server.
type ServerState string

const (
	StateUnallocated  ServerState = "UNALLOCATED"
	StateNetworkReady ServerState = "NETWORK_READY"
	StateActive       ServerState = "ACTIVE"
	StateTornDown     ServerState = "TORN_DOWN"
)

var transitions = map[ServerState][]ServerState{
	StateUnallocated:  {StateNetworkReady},
	StateNetworkReady: {StateActive, StateUnallocated},
	StateActive:       {StateTornDown},
	StateTornDown:     {StateUnallocated},
}

// Lifecycle tracks share servers through
// UNALLOCATED → NETWORK_READY → ACTIVE → TORN_DOWN → UNALLOCATED.
// NETWORK_READY may also go straight back to UNALLOCATED when the caller
// releases the network of a server whose setup failed. Nothing is rolled
// back automatically.
type Lifecycle struct {
	mu     sync.Mutex
	states map[string]ServerState
}

// NewLifecycle returns an empty tracker; unknown servers are UNALLOCATED.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{states: make(map[string]ServerState)}
}

// State returns the current state of serverID.
func (l *Lifecycle) State(serverID string) ServerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(serverID)
}

// Check reports whether serverID may move to next.
func (l *Lifecycle) Check(serverID string, next ServerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(serverID, next)
}

// Transition moves serverID to next.
func (l *Lifecycle) Transition(serverID string, next ServerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(serverID, next); err != nil {
		return err
	}
	if next == StateUnallocated {
		delete(l.states, serverID)
	} else {
		l.states[serverID] = next
	}
	return nil
}

// Servers returns a copy of every tracked server that is not UNALLOCATED.
func (l *Lifecycle) Servers() map[string]ServerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]ServerState, len(l.states))
	for id, s := range l.states {
		out[id] = s
	}
	return out
}

func (l *Lifecycle) state(serverID string) ServerState {
	if s, ok := l.states[serverID]; ok {
		return s
	}
	return StateUnallocated
}

func (l *Lifecycle) check(serverID string, next ServerState) error {
	current := l.state(serverID)
	for _, allowed := range transitions[current] {
		if allowed == next {
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeInvalidState,
		"share server %s cannot move from %s to %s", serverID, current, next).
		WithComponent("lifecycle").
		WithDetail("server_id", serverID).
		WithDetail("from", string(current)).
		WithDetail("to", string(next))
}
