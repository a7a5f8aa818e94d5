package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCostTracker_Recompute_PricesKnownModel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ct := NewCostTracker(m)

	got := ct.Recompute("wf-1", map[string]TokenUsage{
		"claude-sonnet-4-5": {InputTokens: 1_000_000, OutputTokens: 1_000_000},
	})

	want := 3.00 + 15.00
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if ct.Spend("wf-1") != want {
		t.Errorf("Spend() = %v, want %v", ct.Spend("wf-1"), want)
	}
}

func TestCostTracker_Recompute_UnknownModelUsesGenericPricing(t *testing.T) {
	ct := NewCostTracker(nil)

	got := ct.Recompute("wf-1", map[string]TokenUsage{
		"some-future-model": {InputTokens: 1_000_000, OutputTokens: 0},
	})

	if got != genericPricing.InputPer1M {
		t.Errorf("got %v, want %v", got, genericPricing.InputPer1M)
	}
}

func TestCostTracker_Recompute_ReplacesRatherThanAccumulates(t *testing.T) {
	ct := NewCostTracker(nil)

	ct.Recompute("wf-1", map[string]TokenUsage{"gpt-5": {InputTokens: 1_000_000}})
	got := ct.Recompute("wf-1", map[string]TokenUsage{"gpt-5": {InputTokens: 2_000_000}})

	want := 2 * defaultModelPricing["gpt-5"].InputPer1M
	if got != want {
		t.Errorf("got %v, want %v (cumulative driver usage should replace, not add)", got, want)
	}
}

func TestCostTracker_Forget_DropsWorkflow(t *testing.T) {
	ct := NewCostTracker(nil)
	ct.Recompute("wf-1", map[string]TokenUsage{"gpt-5": {InputTokens: 1_000_000}})

	ct.Forget("wf-1")

	if got := ct.Spend("wf-1"); got != 0 {
		t.Errorf("expected spend to be reset after Forget, got %v", got)
	}
}
