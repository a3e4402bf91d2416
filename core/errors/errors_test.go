package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// =============================================================================
// Retryability Tests
// =============================================================================

func TestIsRetryable_ValidationNeverRetries(t *testing.T) {
	err := NewValidationError("description", "must not be empty")

	if IsRetryable(err) {
		t.Error("expected validation errors to be non-retryable")
	}
}

func TestIsRetryable_DependencyTimeoutNeverRetries(t *testing.T) {
	err := &DependencyTimeoutError{UnitID: "sg-1", Waited: time.Minute, Unresolved: []string{"sg-0"}}

	if IsRetryable(err) {
		t.Error("expected dependency timeout errors to be non-retryable")
	}
}

func TestIsRetryable_CircuitOpenNeverRetries(t *testing.T) {
	err := &CircuitOpenError{WorkerID: "research", Since: time.Now()}

	if IsRetryable(err) {
		t.Error("expected circuit open errors to be non-retryable")
	}
}

func TestIsRetryable_WorkerErrorCarriesFlag(t *testing.T) {
	retryable := &WorkerExecutionError{WorkerID: "w", TaskID: "t", Attempts: 1, Retryable: true, Err: errors.New("boom")}
	permanent := &WorkerExecutionError{WorkerID: "w", TaskID: "t", Attempts: 1, Retryable: false, Err: errors.New("boom")}

	if !IsRetryable(retryable) {
		t.Error("expected retryable worker error to retry")
	}
	if IsRetryable(permanent) {
		t.Error("expected non-retryable worker error not to retry")
	}
}

func TestIsRetryable_WrappedWorkerError(t *testing.T) {
	inner := &WorkerExecutionError{WorkerID: "w", TaskID: "t", Attempts: 2, Retryable: true, Err: errors.New("boom")}
	wrapped := fmt.Errorf("execute: %w", inner)

	if !IsRetryable(wrapped) {
		t.Error("expected wrapped worker error to preserve retryability")
	}
}

func TestIsTransient_Keywords(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset by peer"), true},
		{errors.New("request timed out"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("invalid payload shape"), false},
		{errors.New("unauthorized"), false},
		// Permanent patterns take precedence over transient ones.
		{errors.New("invalid request timeout parameter"), false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

// =============================================================================
// Backoff Tests
// =============================================================================

func TestBackoffPolicy_FirstAttemptHasNoDelay(t *testing.T) {
	policy := DefaultBackoffPolicy()

	if d := policy.Delay(1); d != 0 {
		t.Errorf("expected no delay before attempt 1, got %s", d)
	}
}

func TestBackoffPolicy_ExponentialGrowth(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Minute, Multiplier: 2.0}

	if d := policy.Delay(2); d != 100*time.Millisecond {
		t.Errorf("attempt 2 delay = %s, want 100ms", d)
	}
	if d := policy.Delay(3); d != 200*time.Millisecond {
		t.Errorf("attempt 3 delay = %s, want 200ms", d)
	}
	if d := policy.Delay(4); d != 400*time.Millisecond {
		t.Errorf("attempt 4 delay = %s, want 400ms", d)
	}
}

func TestBackoffPolicy_CapsAtMaxDelay(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2.0}

	if d := policy.Delay(10); d != 3*time.Second {
		t.Errorf("expected cap at 3s, got %s", d)
	}
}

func TestBackoffPolicy_JitterNeverShrinksDelay(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Minute, Multiplier: 2.0, JitterPercent: 0.5}

	for i := 0; i < 50; i++ {
		base := policy.Delay(3)
		jittered := policy.DelayWithJitter(3)
		if jittered < base {
			t.Fatalf("jittered delay %s below exponential lower bound %s", jittered, base)
		}
	}
}

// =============================================================================
// Circuit Breaker Tests
// =============================================================================

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("research", DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("expected new breaker closed, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("expected closed breaker to allow dispatch")
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.ConsecutiveFailures = 3
	cb := NewCircuitBreaker("research", config)

	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open after 3 consecutive failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("expected open breaker to deny dispatch")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.ConsecutiveFailures = 3
	cb := NewCircuitBreaker("research", config)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, interleaved success should reset the count, got %v", cb.State())
	}
}

func TestCircuitBreaker_ProbeAfterCooldownClosesOnSuccess(t *testing.T) {
	config := CircuitBreakerConfig{ConsecutiveFailures: 1, CooldownDuration: 10 * time.Millisecond, SuccessThreshold: 1}
	cb := NewCircuitBreaker("research", config)

	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("expected denial during cooldown")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected probe admission after cooldown")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open during probe, got %v", cb.State())
	}

	cb.RecordResult(true)
	if cb.State() != CircuitClosed {
		t.Errorf("expected successful probe to close circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	config := CircuitBreakerConfig{ConsecutiveFailures: 1, CooldownDuration: 10 * time.Millisecond, SuccessThreshold: 1}
	cb := NewCircuitBreaker("research", config)

	cb.RecordResult(false)
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordResult(false)

	if cb.State() != CircuitOpen {
		t.Errorf("expected failed probe to reopen circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.ConsecutiveFailures = 1
	cb := NewCircuitBreaker("research", config)

	cb.RecordResult(false)
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("expected manual reset to close circuit, got %v", cb.State())
	}
}

// =============================================================================
// Circuit Registry Tests
// =============================================================================

func TestCircuitRegistry_IsolatesWorkers(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.ConsecutiveFailures = 2
	registry := NewCircuitRegistry(config)

	registry.RecordResult("navigation", false)
	registry.RecordResult("navigation", false)

	if registry.Allow("navigation") {
		t.Error("expected navigation circuit open")
	}
	if !registry.Allow("research") {
		t.Error("expected research circuit unaffected")
	}
}

func TestCircuitRegistry_States(t *testing.T) {
	registry := NewCircuitRegistry(DefaultCircuitBreakerConfig())
	registry.Allow("a")
	registry.Allow("b")

	states := registry.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 tracked breakers, got %d", len(states))
	}
	if states["a"] != CircuitClosed {
		t.Errorf("expected breaker a closed, got %v", states["a"])
	}
}
