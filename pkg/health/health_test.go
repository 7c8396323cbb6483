package health

import (
	"fmt"
	"sync"
	"testing"

	"github.com/objectfs/sharedriver/pkg/errors"
)

func TestTracker_RegisterComponent(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	tracker.RegisterComponent("appliance")

	state := tracker.GetState("appliance")
	if state != StateHealthy {
		t.Errorf("Expected initial state to be StateHealthy, got %s", state)
	}
	if got := tracker.GetState("unknown"); got != StateUnavailable {
		t.Errorf("Expected unknown component to be StateUnavailable, got %s", got)
	}
}

func TestTracker_RecordSuccess(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	tracker.RegisterComponent("appliance")

	tracker.RecordError("appliance", fmt.Errorf("test error"))
	tracker.RecordError("appliance", fmt.Errorf("test error"))

	tracker.RecordSuccess("appliance")
	tracker.RecordSuccess("appliance")

	health, err := tracker.GetComponentHealth("appliance")
	if err != nil {
		t.Fatalf("Failed to get component health: %v", err)
	}
	if health.ConsecutiveErrors != 0 {
		t.Errorf("Expected ConsecutiveErrors=0 after successes, got %d", health.ConsecutiveErrors)
	}
	if health.LastErrorMessage != "test error" {
		t.Errorf("Expected last error message to be kept, got %q", health.LastErrorMessage)
	}
}

func TestTracker_Degradation(t *testing.T) {
	tracker := NewTracker(TrackerConfig{ErrorThreshold: 3, UnavailableThreshold: 5})
	tracker.RegisterComponent("appliance")

	for i := 0; i < 2; i++ {
		tracker.RecordError("appliance", fmt.Errorf("error %d", i))
	}
	if state := tracker.GetState("appliance"); state != StateHealthy {
		t.Errorf("Expected StateHealthy before threshold, got %s", state)
	}

	tracker.RecordError("appliance", fmt.Errorf("error 2"))
	if state := tracker.GetState("appliance"); state != StateDegraded {
		t.Errorf("Expected StateDegraded at threshold, got %s", state)
	}

	tracker.RecordError("appliance", fmt.Errorf("error 3"))
	tracker.RecordError("appliance", fmt.Errorf("error 4"))
	if state := tracker.GetState("appliance"); state != StateUnavailable {
		t.Errorf("Expected StateUnavailable, got %s", state)
	}
	if overall := tracker.GetOverallHealth(); overall != StateUnavailable {
		t.Errorf("Expected overall StateUnavailable, got %s", overall)
	}

	for i := 0; i < 5; i++ {
		tracker.RecordSuccess("appliance")
	}
	if !tracker.IsHealthy("appliance") {
		t.Errorf("Expected recovery after successes, got %s", tracker.GetState("appliance"))
	}
}

func TestNewTracker_ThresholdDefaults(t *testing.T) {
	tracker := NewTracker(TrackerConfig{ErrorThreshold: 2})
	if tracker.config.UnavailableThreshold != DefaultConfig().UnavailableThreshold {
		t.Errorf("Expected UnavailableThreshold=%d, got %d", DefaultConfig().UnavailableThreshold, tracker.config.UnavailableThreshold)
	}

	for i := 0; i < 2; i++ {
		tracker.RecordError("appliance", fmt.Errorf("refused"))
	}
	if state := tracker.GetState("appliance"); state != StateDegraded {
		t.Errorf("Expected StateDegraded after 2 errors, got %s", state)
	}

	clamped := NewTracker(TrackerConfig{ErrorThreshold: 12})
	if clamped.config.UnavailableThreshold != 12 {
		t.Errorf("Expected UnavailableThreshold clamped to 12, got %d", clamped.config.UnavailableThreshold)
	}

	defaults := NewTracker(TrackerConfig{})
	if defaults.config != DefaultConfig() {
		t.Errorf("Expected default config, got %+v", defaults.config)
	}
}

func TestTracker_RecordIgnoresContractErrors(t *testing.T) {
	tracker := NewTracker(TrackerConfig{ErrorThreshold: 1})

	ignored := []error{
		errors.NotImplemented("create_share"),
		errors.NewError(errors.ErrCodeInvalidState, "out of order"),
		errors.NewError(errors.ErrCodeOperationCanceled, "canceled"),
		errors.NewError(errors.ErrCodeInvalidConfig, "bad option"),
	}
	for _, err := range ignored {
		tracker.Record("backend", err)
	}
	tracker.Record("backend", nil)
	if !tracker.IsHealthy("backend") {
		t.Errorf("Expected contract errors to be ignored, got %s", tracker.GetState("backend"))
	}

	tracker.Record("backend", errors.NewError(errors.ErrCodeRetryExhausted, "gave up"))
	if state := tracker.GetState("backend"); state != StateDegraded {
		t.Errorf("Expected StateDegraded after an exhausted retry, got %s", state)
	}
}

func TestTracker_NilRecord(t *testing.T) {
	var tracker *Tracker
	tracker.Record("backend", fmt.Errorf("ignored"))
}

func TestTracker_StateChangeCallbacks(t *testing.T) {
	tracker := NewTracker(TrackerConfig{ErrorThreshold: 2, UnavailableThreshold: 3})

	type change struct {
		from, to HealthState
	}
	var changes []change
	tracker.OnStateChange(func(component string, oldState, newState HealthState, err error) {
		if component != "appliance" {
			t.Errorf("unexpected component %s", component)
		}
		changes = append(changes, change{oldState, newState})
	})

	for i := 0; i < 3; i++ {
		tracker.RecordError("appliance", fmt.Errorf("refused"))
	}
	for i := 0; i < 3; i++ {
		tracker.RecordSuccess("appliance")
	}

	want := []change{
		{StateHealthy, StateDegraded},
		{StateDegraded, StateUnavailable},
		{StateUnavailable, StateHealthy},
	}
	if len(changes) != len(want) {
		t.Fatalf("Expected %d state changes, got %d: %v", len(want), len(changes), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d: expected %v, got %v", i, want[i], changes[i])
		}
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("host-%d", i%4)
			for j := 0; j < 50; j++ {
				if j%2 == 0 {
					tracker.RecordError(name, fmt.Errorf("flaky"))
				} else {
					tracker.RecordSuccess(name)
				}
			}
		}(i)
	}
	wg.Wait()

	if n := len(tracker.GetAllComponents()); n != 4 {
		t.Errorf("Expected 4 components, got %d", n)
	}
}

func TestHealthState_String(t *testing.T) {
	tests := map[HealthState]string{
		StateHealthy:     "healthy",
		StateDegraded:    "degraded",
		StateUnavailable: "unavailable",
		HealthState(42):  "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("HealthState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
