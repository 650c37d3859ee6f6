package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/caresync/caresync/internal/bus"
)

// State represents the runtime state of the link to the document store.
type State string

const (
	Booting    State = "BOOTING"
	Connecting State = "CONNECTING"
	Live       State = "LIVE"
	Degraded   State = "DEGRADED"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {Connecting, Error},
	Connecting: {Live, Degraded, Error},
	Live:       {Degraded, Error},
	Degraded:   {Connecting, Live, Error},
	Error:      {Booting},
}

// Machine tracks and enforces store-link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStoreStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
