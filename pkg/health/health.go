// Package health tracks whether the components behind a share driver keep
// failing, so callers can tell a flaky appliance from a dead one.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// HealthState represents the health of a component
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates recent operations keep failing
	StateDegraded

	// StateUnavailable indicates the component has stopped answering
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name              string      `json:"name" yaml:"name"`
	State             HealthState `json:"state" yaml:"state"`
	LastStateChange   time.Time   `json:"last_state_change" yaml:"last_state_change"`
	LastCheck         time.Time   `json:"last_check" yaml:"last_check"`
	ConsecutiveErrors int         `json:"consecutive_errors" yaml:"consecutive_errors"`
	LastErrorMessage  string      `json:"last_error_message,omitempty" yaml:"last_error_message,omitempty"`
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before marking a component degraded
	ErrorThreshold int `yaml:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before marking unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold"`
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
	}
}

// Tracker tracks the health of named components. Errors that say nothing
// about the component itself, such as an operation the backend does not
// implement or a call made in the wrong lifecycle state, are not counted.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	callbacks  []StateChangeCallback
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	def := DefaultConfig()
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = def.ErrorThreshold
	}
	if config.UnavailableThreshold <= 0 {
		config.UnavailableThreshold = def.UnavailableThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

// RegisterComponent starts tracking name as healthy.
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.component(name)
}

// OnStateChange adds a callback run on every state change. Callbacks run
// with the tracker unlocked.
func (t *Tracker) OnStateChange(cb StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Record records the outcome of one operation of component.
func (t *Tracker) Record(component string, err error) {
	if t == nil {
		return
	}
	if err == nil {
		t.RecordSuccess(component)
		return
	}
	if !counts(err) {
		return
	}
	t.RecordError(component, err)
}

// RecordSuccess records a successful operation for a component. Each
// success takes one error off the count; the component is healthy again
// once the count reaches zero.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	health := t.component(component)
	oldState := health.State
	health.LastCheck = time.Now()

	if health.ConsecutiveErrors > 0 {
		health.ConsecutiveErrors--
		if health.ConsecutiveErrors == 0 && health.State != StateHealthy {
			t.transition(health, StateHealthy)
		}
	}
	newState := health.State
	callbacks := t.callbacks
	t.mu.Unlock()

	notify(callbacks, component, oldState, newState, nil)
}

// RecordError records an error for a component
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	health := t.component(component)
	oldState := health.State
	health.LastCheck = time.Now()
	health.ConsecutiveErrors++
	if err != nil {
		health.LastErrorMessage = err.Error()
	}

	switch {
	case health.ConsecutiveErrors >= t.config.UnavailableThreshold:
		t.transition(health, StateUnavailable)
	case health.ConsecutiveErrors >= t.config.ErrorThreshold:
		t.transition(health, StateDegraded)
	}
	newState := health.State
	callbacks := t.callbacks
	t.mu.Unlock()

	notify(callbacks, component, oldState, newState, err)
}

// GetState returns the current health state of a component
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[component]; exists {
		return health.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of the health information for a component
func (t *Tracker) GetComponentHealth(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[component]
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", component)
	}
	return *health, nil
}

// GetAllComponents returns copies of every tracked component
func (t *Tracker) GetAllComponents() map[string]ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ComponentHealth, len(t.components))
	for name, health := range t.components {
		result[name] = *health
	}
	return result
}

// GetOverallHealth returns the worst state of all components
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overallState := StateHealthy
	for _, health := range t.components {
		if health.State > overallState {
			overallState = health.State
		}
	}
	return overallState
}

// IsHealthy returns true if the component is in a healthy state
func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

func (t *Tracker) component(name string) *ComponentHealth {
	health, exists := t.components[name]
	if !exists {
		now := time.Now()
		health = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastCheck:       now,
		}
		t.components[name] = health
	}
	return health
}

func (t *Tracker) transition(health *ComponentHealth, newState HealthState) {
	if health.State == newState {
		return
	}
	health.State = newState
	health.LastStateChange = time.Now()
}

func notify(callbacks []StateChangeCallback, component string, oldState, newState HealthState, err error) {
	if oldState == newState {
		return
	}
	for _, cb := range callbacks {
		cb(component, oldState, newState, err)
	}
}

// counts reports whether err reflects on the component's health.
func counts(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotImplemented,
		errors.ErrCodeNotSupported,
		errors.ErrCodeInvalidState,
		errors.ErrCodeInvalidConfig,
		errors.ErrCodeOperationCanceled:
		return false
	}
	return true
}
