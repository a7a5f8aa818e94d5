package driver

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

// BreakerConfig tunes the circuit breaker wrapped around API and container
// drivers. A zero value disables the breaker (all calls pass through).
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration

	// OnStateChange, if set, is called whenever either breaker trips,
	// resets or half-opens. name is "driver.generate" or "driver.agentic".
	OnStateChange func(name string, from, to gobreaker.State)
}

// WithBreaker wraps d so that repeated TransientProviderError failures trip
// a circuit breaker, failing fast instead of hammering a degraded provider.
// Non-transient errors (schema validation, sandbox faults) never count
// against the breaker, via Settings.IsSuccessful.
func WithBreaker(d Driver, cfg BreakerConfig) Driver {
	if cfg.MaxFailures == 0 {
		return d
	}
	genSettings := gobreaker.Settings{
		Name:    "driver.generate",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.IsRetryable(err)
		},
		OnStateChange: cfg.OnStateChange,
	}
	agenticSettings := genSettings
	agenticSettings.Name = "driver.agentic"

	return &breakerDriver{
		inner:     d,
		genCB:     gobreaker.NewCircuitBreaker(genSettings),
		agenticCB: gobreaker.NewCircuitBreaker(agenticSettings),
	}
}

type breakerDriver struct {
	inner     Driver
	genCB     *gobreaker.CircuitBreaker
	agenticCB *gobreaker.CircuitBreaker
}

func (b *breakerDriver) Generate(ctx context.Context, prompt, system string, schema Schema, session state.DriverSession) (GenerateOutput, error) {
	out, err := b.genCB.Execute(func() (interface{}, error) {
		return b.inner.Generate(ctx, prompt, system, schema, session)
	})
	if out == nil {
		return GenerateOutput{}, err
	}
	return out.(GenerateOutput), err
}

func (b *breakerDriver) ExecuteAgentic(ctx context.Context, prompt, cwd, instructions string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error) {
	out, err := b.agenticCB.Execute(func() (interface{}, error) {
		return b.inner.ExecuteAgentic(ctx, prompt, cwd, instructions, allowedTools, session, sink)
	})
	if out == nil {
		return session, err
	}
	return out.(state.DriverSession), err
}

func (b *breakerDriver) GetUsage() Usage {
	return b.inner.GetUsage()
}

func (b *breakerDriver) CleanupSession(ctx context.Context, session state.DriverSession) (bool, error) {
	return b.inner.CleanupSession(ctx, session)
}
