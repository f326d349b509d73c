package model

import (
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available initially")
	}
	if r.GetEndpointHealth("qwen") != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("qwen")

	health := r.GetEndpointHealth("qwen")
	if health == nil {
		t.Fatal("expected health info after success")
	}
	if !health.Available || health.FailureCount != 0 || health.LastSuccess.IsZero() {
		t.Errorf("unexpected health after success: %+v", health)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("qwen")
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available after 1 failure")
	}

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be unavailable after circuit opens")
	}

	health := r.GetEndpointHealth("qwen")
	if health == nil || !health.CircuitOpen || health.FailureCount != 2 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	clock := time.Now()
	r.tracker().now = func() time.Time { return clock }

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be unavailable immediately after failure")
	}

	clock = clock.Add(2 * time.Minute)
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available after recovery timeout")
	}

	r.MarkEndpointSuccess("qwen")
	health := r.GetEndpointHealth("qwen")
	if health == nil || health.CircuitOpen || health.FailureCount != 0 {
		t.Errorf("expected closed circuit after success, got %+v", health)
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("qwen")

	chain := r.GetAvailableFallbackChain(CapabilityReasoning)
	for _, name := range chain {
		if name == "qwen" {
			t.Error("expected qwen to be excluded from available chain")
		}
	}
	if len(chain) != 2 || chain[0] != "deepseek" {
		t.Errorf("chain = %v, want [deepseek qwen-mini]", chain)
	}

	r.MarkEndpointFailure("deepseek")
	r.MarkEndpointFailure("qwen-mini")
	if got := r.GetAvailableFallbackChain(CapabilityReasoning); len(got) != 3 {
		t.Errorf("all-unavailable chain = %v, want full chain", got)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("qwen")
	r.ResetEndpointHealth("qwen")

	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen available after reset")
	}
	if r.GetEndpointHealth("qwen") != nil {
		t.Error("expected no health info after reset")
	}
}
