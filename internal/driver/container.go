package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/sandbox"
	"github.com/amelia-orch/amelia/internal/state"
)

// ContainerDriver implements Driver by running a worker module inside a
// sandboxed container (spec.md §4.2 variant 3): the prompt is written to a
// temp file inside the container, a worker binary is invoked via
// sandbox.Provider.ExecStream, and each stdout line is parsed as a
// JSON-encoded AgenticMessage. Stateless: CleanupSession always returns
// false and session ids are ignored.
type ContainerDriver struct {
	provider      sandbox.Provider
	containerName string
	workerCmd     string
	cfg           sandbox.Config

	mu    sync.Mutex
	usage Usage
}

// NewContainerDriver wraps a running (or lazily-started) sandbox. workerCmd
// is the shell command that reads the prompt file and emits
// AgenticMessage-shaped JSON lines on stdout, e.g.
// "amelia-worker --prompt-file %s".
func NewContainerDriver(provider sandbox.Provider, containerName, workerCmd string, cfg sandbox.Config) *ContainerDriver {
	return &ContainerDriver{provider: provider, containerName: containerName, workerCmd: workerCmd, cfg: cfg}
}

func (d *ContainerDriver) Generate(ctx context.Context, prompt, system string, schema Schema, session state.DriverSession) (GenerateOutput, error) {
	var content string
	var genErr error
	_, err := d.ExecuteAgentic(ctx, prompt, "", system, nil, session, func(m AgenticMessage) {
		switch m.Kind {
		case AgenticText:
			content += m.Text
		case AgenticResult:
			content = m.Result
		}
	})
	if err != nil {
		genErr = err
	}
	if genErr != nil {
		return GenerateOutput{}, genErr
	}

	out := GenerateOutput{Content: content, Session: session}
	if schema != nil {
		structured, err := validateAgainstSchema(content, schema)
		if err != nil {
			return GenerateOutput{}, &errs.SchemaValidationError{Schema: fmt.Sprintf("%v", schema["title"]), Cause: err}
		}
		out.Structured = structured
	}
	return out, nil
}

func (d *ContainerDriver) ExecuteAgentic(ctx context.Context, prompt, cwd, instructions string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error) {
	if err := d.provider.EnsureRunning(ctx, d.containerName, d.cfg); err != nil {
		return session, err
	}

	promptFile := fmt.Sprintf("/tmp/amelia-prompt-%s.txt", randSuffix())
	write := fmt.Sprintf("cat > %s", promptFile)
	_, writeErr := d.provider.ExecStream(ctx, d.containerName, write, sandbox.ExecOptions{Stdin: prompt})
	if err := drainErr(writeErr); err != nil {
		return session, &errs.SandboxError{Op: "write_prompt", Cause: err}
	}

	cleanup := fmt.Sprintf("rm -f %s", promptFile)
	defer func() {
		_, ec := d.provider.ExecStream(context.Background(), d.containerName, cleanup, sandbox.ExecOptions{})
		<-ec
	}()

	command := fmt.Sprintf(d.workerCmd, promptFile)
	if len(allowedTools) > 0 {
		for _, t := range allowedTools {
			command += " --allow-tool " + t
		}
	}
	if instructions != "" {
		command += " --instructions-file=" + promptFile
	}

	lines, errc := d.provider.ExecStream(ctx, d.containerName, command, sandbox.ExecOptions{Cwd: cwd})
	for line := range lines {
		if line == "" {
			continue
		}
		var frame AgenticMessage
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			sink(AgenticMessage{Kind: AgenticText, Text: line})
			continue
		}
		sink(frame)
		d.mu.Lock()
		d.usage.OutputTokens += len(line) / 4
		d.mu.Unlock()
	}

	if err := drainErr(errc); err != nil {
		return session, &errs.SandboxError{Op: "exec_stream", Cause: err}
	}
	return session, nil
}

func drainErr(errc <-chan error) error {
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

func (d *ContainerDriver) GetUsage() Usage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage
}

// CleanupSession always returns false: the container driver is stateless
// across calls, per spec.md §4.2.
func (d *ContainerDriver) CleanupSession(_ context.Context, _ state.DriverSession) (bool, error) {
	return false, nil
}

var randCounter struct {
	mu sync.Mutex
	n  int
}

// randSuffix produces a distinct temp file suffix per process via a
// monotonic counter; collisions across separate processes are harmless
// since each writes into its own container.
func randSuffix() string {
	randCounter.mu.Lock()
	defer randCounter.mu.Unlock()
	randCounter.n++
	return fmt.Sprintf("%d", randCounter.n)
}
