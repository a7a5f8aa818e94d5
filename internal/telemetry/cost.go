package telemetry

import "sync"

// modelPricing is USD per 1M tokens, grounded on the teacher's graph/cost.go
// static pricing table but trimmed to the three model families profiles
// actually select (internal/driver.ProviderModels). Unknown models fall back
// to genericPricing rather than erroring, since a profile can name any model
// string the provider accepts.
type modelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var defaultModelPricing = map[string]modelPricing{
	"claude-sonnet-4-5": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-opus-4":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"gpt-5":             {InputPer1M: 5.00, OutputPer1M: 15.00},
	"gpt-5-mini":        {InputPer1M: 0.25, OutputPer1M: 2.00},
	"gemini-2.5-pro":    {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-2.5-flash":  {InputPer1M: 0.075, OutputPer1M: 0.30},
}

var genericPricing = modelPricing{InputPer1M: 3.00, OutputPer1M: 15.00}

// CostTracker accumulates estimated USD spend per workflow from token usage
// reported by internal/driver.Usage, the same input RecordLLMCall consumed
// in the teacher's graph/cost.go, rescoped from one in-process run to many
// concurrently-tracked workflow IDs.
type CostTracker struct {
	mu      sync.Mutex
	pricing map[string]modelPricing
	spend   map[string]float64 // workflowID -> cumulative USD
	metrics *Metrics
}

func NewCostTracker(metrics *Metrics) *CostTracker {
	return &CostTracker{
		pricing: defaultModelPricing,
		spend:   make(map[string]float64),
		metrics: metrics,
	}
}

// TokenUsage mirrors the fields of internal/driver.Usage this package
// actually needs, kept local so telemetry doesn't import internal/driver
// just to price a token count.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Recompute prices byModel (one cumulative driver.Usage per model string
// active in the workflow's profile) and republishes workflowID's total
// through Metrics.SetWorkflowCost. Driver usage counters are already
// cumulative across a workflow's calls, so this replaces the prior total
// rather than adding to it — calling it again after another step simply
// reflects the driver's updated cumulative counters.
func (c *CostTracker) Recompute(workflowID string, byModel map[string]TokenUsage) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for model, usage := range byModel {
		p, ok := c.pricing[model]
		if !ok {
			p = genericPricing
		}
		total += float64(usage.InputTokens)*p.InputPer1M/1e6 + float64(usage.OutputTokens)*p.OutputPer1M/1e6
	}

	c.spend[workflowID] = total
	if c.metrics != nil {
		c.metrics.SetWorkflowCost(workflowID, total)
	}
	return total
}

// Spend returns workflowID's cumulative estimated USD cost so far.
func (c *CostTracker) Spend(workflowID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spend[workflowID]
}

// Forget drops workflowID's running total once its workflow has terminated,
// so spend doesn't accumulate forever in long-lived processes.
func (c *CostTracker) Forget(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.spend, workflowID)
}
