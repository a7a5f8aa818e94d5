package state

import "time"

// SandboxMode selects how agent-initiated shell/tool use is executed.
type SandboxMode string

const (
	SandboxNone      SandboxMode = "none"
	SandboxContainer SandboxMode = "container"
)

// SandboxConfig describes the isolated execution environment for a profile.
type SandboxConfig struct {
	Mode                    SandboxMode `json:"mode" yaml:"mode" validate:"omitempty,oneof=none container"`
	Image                   string      `json:"image" yaml:"image" validate:"required_if=Mode container"`
	NetworkAllowlistEnabled bool        `json:"network_allowlist_enabled" yaml:"network_allowlist_enabled"`
	NetworkAllowedHosts     []string    `json:"network_allowed_hosts,omitempty" yaml:"network_allowed_hosts,omitempty"`
}

// DriverKey selects which Driver implementation an agent uses.
type DriverKey string

const (
	DriverAPI DriverKey = "api"
	DriverCLI DriverKey = "cli"
)

// AgentOptions carries per-agent tuning knobs referenced across spec.md
// §4.5/§6.3 (max_iterations, validator_model, ...). Unknown keys are
// preserved verbatim so new agent-specific knobs don't require a schema
// migration.
type AgentOptions struct {
	MaxIterations  int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	ValidatorModel string   `json:"validator_model,omitempty" yaml:"validator_model,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
}

// AgentConfig is a per-agent override. Sandbox and ProfileName are injected
// at lookup time (see config.ResolveAgent) and are never stored on the
// nested YAML value itself, so that updating a profile's sandbox does not
// require walking every agent entry (spec.md §3.4).
type AgentConfig struct {
	Driver  DriverKey    `json:"driver" yaml:"driver" validate:"required,oneof=api cli"`
	Model   string       `json:"model" yaml:"model" validate:"required"`
	Options AgentOptions `json:"options,omitempty" yaml:"options,omitempty"`

	Sandbox     SandboxConfig `json:"-" yaml:"-"`
	ProfileName string        `json:"-" yaml:"-"`
}

// TrackerKind selects the external issue tracker a profile reports to.
type TrackerKind string

const (
	TrackerJira   TrackerKind = "jira"
	TrackerGitHub TrackerKind = "github"
	TrackerNoop   TrackerKind = "noop"
)

// RetryConfig configures exponential backoff with jitter for
// TransientProviderError, per spec.md §4.5/§7.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" validate:"min=0"`
	BaseDelay   time.Duration `json:"base_delay_ms" yaml:"base_delay_ms" validate:"min=0"`
	MaxDelay    time.Duration `json:"max_delay_ms" yaml:"max_delay_ms" validate:"min=0"`
}

// Profile is the immutable, named bundle of agent configs, sandbox defaults
// and execution policy described in spec.md §3.4/§6.3.
type Profile struct {
	Name                    string               `json:"name" yaml:"name" validate:"required"`
	Agents                  map[Role]AgentConfig `json:"agents" yaml:"agents" validate:"required,dive"`
	Sandbox                 SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Tracker                 TrackerKind          `json:"tracker" yaml:"tracker" validate:"omitempty,oneof=jira github noop"`
	WorkingDir              string               `json:"working_dir" yaml:"working_dir" validate:"required"`
	PlanOutputDir           string               `json:"plan_output_dir" yaml:"plan_output_dir"`
	PlanPathPattern         string               `json:"plan_path_pattern,omitempty" yaml:"plan_path_pattern,omitempty"`
	Retry                   RetryConfig          `json:"retry" yaml:"retry"`
	MaxTaskReviewIterations int                  `json:"max_task_review_iterations" yaml:"max_task_review_iterations" validate:"min=0"`
	AutoApproveReviews      bool                 `json:"auto_approve_reviews" yaml:"auto_approve_reviews"`
	ExecutionMode           string               `json:"execution_mode,omitempty" yaml:"execution_mode,omitempty"`
	MaxConcurrentTasks      int                  `json:"max_concurrent_tasks,omitempty" yaml:"max_concurrent_tasks,omitempty" validate:"min=0"`
}

// ResolveAgent returns the AgentConfig for role with the profile's sandbox
// and name injected, per spec.md §3.4. The returned value is a copy; the
// profile itself is never mutated.
func (p Profile) ResolveAgent(role Role) (AgentConfig, bool) {
	cfg, ok := p.Agents[role]
	if !ok {
		return AgentConfig{}, false
	}
	cfg.Sandbox = p.Sandbox
	cfg.ProfileName = p.Name
	return cfg, true
}
