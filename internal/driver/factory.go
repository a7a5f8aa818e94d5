package driver

import (
	"fmt"

	"github.com/amelia-orch/amelia/internal/driver/provider"
	"github.com/amelia-orch/amelia/internal/sandbox"
	"github.com/amelia-orch/amelia/internal/state"
)

// ProviderModels resolves a provider.ChatModel for an AgentConfig's model
// string, keyed by the provider family prefix (e.g. "claude-", "gpt-",
// "gemini-"). Callers build this once at startup from API keys in config.
type ProviderModels struct {
	Anthropic provider.ChatModel
	OpenAI    provider.ChatModel
	Google    provider.ChatModel
}

func (m ProviderModels) forModel(model string) (provider.ChatModel, error) {
	switch {
	case len(model) >= 6 && model[:6] == "claude":
		if m.Anthropic == nil {
			return nil, fmt.Errorf("driver factory: no anthropic model configured")
		}
		return m.Anthropic, nil
	case len(model) >= 6 && model[:6] == "gemini":
		if m.Google == nil {
			return nil, fmt.Errorf("driver factory: no google model configured")
		}
		return m.Google, nil
	default:
		if m.OpenAI == nil {
			return nil, fmt.Errorf("driver factory: no openai model configured")
		}
		return m.OpenAI, nil
	}
}

// Factory builds the correct Driver for an AgentConfig's (driver, sandbox
// mode) pair, per the selection matrix in spec.md §4.2.
type Factory struct {
	Models       ProviderModels
	Tools        ToolRegistry
	CLICommand   string
	CLIBaseArgs  []string
	Sandbox      sandbox.Provider
	WorkerCmd    string
	Breaker      BreakerConfig
}

// Build returns the Driver for the given agent configuration, wrapped in a
// circuit breaker when cfg.Driver is an API-backed variant.
func (f Factory) Build(cfg state.AgentConfig) (Driver, error) {
	switch {
	case cfg.Sandbox.Mode == state.SandboxNone && cfg.Driver == state.DriverCLI:
		return NewCLIDriver(f.CLICommand, f.CLIBaseArgs...), nil

	case cfg.Sandbox.Mode == state.SandboxNone && cfg.Driver == state.DriverAPI:
		model, err := f.Models.forModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		d := NewAPIDriver(model, f.Tools)
		return WithBreaker(d, f.Breaker), nil

	case cfg.Sandbox.Mode == state.SandboxContainer && cfg.Driver == state.DriverAPI:
		if f.Sandbox == nil {
			return nil, fmt.Errorf("driver factory: container mode requires a sandbox provider")
		}
		name := "profile-" + cfg.ProfileName
		sbCfg := sandbox.Config{
			Image:                   cfg.Sandbox.Image,
			NetworkAllowlistEnabled: cfg.Sandbox.NetworkAllowlistEnabled,
			AllowedHosts:            cfg.Sandbox.NetworkAllowedHosts,
		}
		d := NewContainerDriver(f.Sandbox, name, f.WorkerCmd, sbCfg)
		return WithBreaker(d, f.Breaker), nil

	case cfg.Sandbox.Mode == state.SandboxContainer && cfg.Driver == state.DriverCLI:
		return nil, fmt.Errorf("driver factory: cli driver inside a container sandbox is unsupported")

	default:
		return nil, fmt.Errorf("driver factory: no driver for mode=%s key=%s", cfg.Sandbox.Mode, cfg.Driver)
	}
}
