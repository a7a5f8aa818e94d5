package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/amelia-orch/amelia/internal/errs"
)

const containerPrefix = "amelia-sandbox-"

// DockerProvider implements Provider by shelling out to the docker CLI
// binary via os/exec. No pack example ships a production (non-test) Docker
// SDK client — testcontainers-go exists only for integration-test
// lifecycles — so the docker binary is the grounded choice here (DESIGN.md).
type DockerProvider struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewDockerProvider constructs an empty DockerProvider.
func NewDockerProvider() *DockerProvider {
	return &DockerProvider{running: map[string]bool{}}
}

func containerName(name string) string {
	if strings.HasPrefix(name, containerPrefix) {
		return name
	}
	return containerPrefix + name
}

func (p *DockerProvider) EnsureRunning(ctx context.Context, name string, cfg Config) error {
	full := containerName(name)

	p.mu.Lock()
	already := p.running[full]
	p.mu.Unlock()
	if already {
		return nil
	}

	inspect := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", full)
	if out, err := inspect.Output(); err == nil && strings.TrimSpace(string(out)) == "true" {
		p.markRunning(full)
		return nil
	}

	args := []string{"run", "-d", "--rm", "--name", full}
	if cfg.Image == "" {
		return &errs.SandboxError{Op: "ensure_running", Cause: fmt.Errorf("sandbox image is required")}
	}
	args = append(args, cfg.Image, "sleep", "infinity")

	run := exec.CommandContext(ctx, "docker", args...)
	if out, err := run.CombinedOutput(); err != nil {
		return &errs.SandboxError{Op: "ensure_running", Cause: fmt.Errorf("docker run: %w: %s", err, out)}
	}

	if cfg.NetworkAllowlistEnabled {
		script, err := GenerateAllowlistScript(cfg.ProxyHost, cfg.ProxyPort, cfg.AllowedHosts)
		if err != nil {
			return &errs.SandboxError{Op: "ensure_running", Cause: err}
		}
		apply := exec.CommandContext(ctx, "docker", "exec", "-i", full, "sh", "-c", "cat > /tmp/allowlist.sh && sh /tmp/allowlist.sh")
		apply.Stdin = strings.NewReader(script)
		if out, err := apply.CombinedOutput(); err != nil {
			return &errs.SandboxError{Op: "apply_allowlist", Cause: fmt.Errorf("%w: %s", err, out)}
		}
	}

	p.markRunning(full)
	return nil
}

func (p *DockerProvider) markRunning(full string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[full] = true
}

func (p *DockerProvider) ExecStream(ctx context.Context, name, command string, opts ExecOptions) (<-chan string, <-chan error) {
	full := containerName(name)
	lines := make(chan string)
	errc := make(chan error, 1)

	args := []string{"exec", "-i"}
	if opts.Cwd != "" {
		args = append(args, "-w", opts.Cwd)
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, full, "sh", "-c", command)

	cmd := exec.CommandContext(ctx, "docker", args...)
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		close(lines)
		errc <- &errs.SandboxError{Op: "exec_stream", Cause: err}
		return lines, errc
	}

	go func() {
		defer close(lines)
		if err := cmd.Start(); err != nil {
			errc <- &errs.SandboxError{Op: "exec_stream", Cause: err}
			return
		}
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := cmd.Wait(); err != nil {
			errc <- &errs.SandboxError{Op: "exec_stream", Cause: err}
			return
		}
	}()

	return lines, errc
}

func (p *DockerProvider) Teardown(ctx context.Context, name string) error {
	full := containerName(name)
	rm := exec.CommandContext(ctx, "docker", "rm", "-f", full)
	_ = rm.Run() // missing docker / already-removed container is not an error here
	p.mu.Lock()
	delete(p.running, full)
	p.mu.Unlock()
	return nil
}

// TeardownAll removes every container matching amelia-sandbox-*, called on
// orchestrator shutdown (spec.md §4.3). Missing Docker is logged by the
// caller and otherwise ignored here.
func (p *DockerProvider) TeardownAll(ctx context.Context) error {
	list := exec.CommandContext(ctx, "docker", "ps", "-aq", "--filter", "name="+containerPrefix)
	out, err := list.Output()
	if err != nil {
		return nil
	}
	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return nil
	}
	rm := exec.CommandContext(ctx, "docker", append([]string{"rm", "-f"}, ids...)...)
	return rm.Run()
}

func (p *DockerProvider) HealthCheck(ctx context.Context, name string) error {
	full := containerName(name)
	inspect := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", full)
	out, err := inspect.Output()
	if err != nil {
		return &errs.SandboxError{Op: "health_check", Cause: err}
	}
	if strings.TrimSpace(string(out)) != "true" {
		return &errs.SandboxError{Op: "health_check", Cause: fmt.Errorf("container %s not running", full)}
	}
	return nil
}
