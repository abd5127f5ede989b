package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failing() error    { return errBackend }
func succeeding() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); !errors.Is(err, errBackend) {
			t.Fatalf("Execute = %v, want backend error", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	if err := cb.Execute(succeeding); err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if cb.Failures() != 0 {
		t.Fatalf("Failures = %d, want 0", cb.Failures())
	}
	if cb.State() != StateClosed {
		t.Fatalf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(failing)
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// A successful probe closes the circuit.
	if err := cb.Execute(succeeding); err != nil {
		t.Fatalf("probe = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State after probe = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(failing)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(failing); !errors.Is(err, errBackend) {
		t.Fatalf("probe = %v, want backend error", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("State after failed probe = %v, want open", cb.State())
	}
	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	_ = cb.Execute(failing)
	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Fatalf("after Reset: state = %v, failures = %d", cb.State(), cb.Failures())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	if err := WithTimeout(ctx, time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("fast call = %v", err)
	}

	err := WithTimeout(ctx, 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("slow call = %v, want ErrTimeout", err)
	}
}

func TestWithTimeout_Disabled(t *testing.T) {
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			return errors.New("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTimeout = %v", err)
	}
}
