package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

// CLIDriver wraps a local command-line agent tool (spec.md §4.2 variant 2).
// Each ExecuteAgentic call spawns one subprocess and parses its stdout as
// newline-delimited JSON frames shaped like AgenticMessage; Generate shells
// out once and treats stdout as the full response.
type CLIDriver struct {
	// Command is the binary to invoke, e.g. "claude" or "codex".
	Command string
	// BaseArgs are prepended to every invocation's arguments.
	BaseArgs []string

	mu    sync.Mutex
	usage Usage
}

// NewCLIDriver builds a driver that shells out to command with the given
// base arguments on every call.
func NewCLIDriver(command string, baseArgs ...string) *CLIDriver {
	return &CLIDriver{Command: command, BaseArgs: baseArgs}
}

func (d *CLIDriver) Generate(ctx context.Context, prompt, system string, schema Schema, session state.DriverSession) (GenerateOutput, error) {
	args := append(append([]string{}, d.BaseArgs...), "--print")
	if system != "" {
		args = append(args, "--system", system)
	}
	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.Stdin = strings.NewReader(prompt)

	out, err := cmd.Output()
	if err != nil {
		return GenerateOutput{}, &errs.TransientProviderError{Provider: "cli:" + d.Command, Cause: err}
	}
	d.mu.Lock()
	d.usage.InputTokens += len(prompt) / 4
	d.usage.OutputTokens += len(out) / 4
	d.mu.Unlock()

	result := GenerateOutput{Content: string(out), Session: session}
	if schema != nil {
		structured, err := validateAgainstSchema(string(out), schema)
		if err != nil {
			return GenerateOutput{}, &errs.SchemaValidationError{Schema: fmt.Sprintf("%v", schema["title"]), Cause: err}
		}
		result.Structured = structured
	}
	return result, nil
}

func (d *CLIDriver) ExecuteAgentic(ctx context.Context, prompt, cwd, instructions string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error) {
	args := append([]string{}, d.BaseArgs...)
	args = append(args, "--print", "--output-format", "stream-json")
	if instructions != "" {
		args = append(args, "--system", instructions)
	}
	for _, t := range allowedTools {
		args = append(args, "--allowed-tool", t)
	}

	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.Dir = cwd
	cmd.Stdin = strings.NewReader(prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return session, &errs.TransientProviderError{Provider: "cli:" + d.Command, Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return session, &errs.TransientProviderError{Provider: "cli:" + d.Command, Cause: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame AgenticMessage
		if err := json.Unmarshal(line, &frame); err != nil {
			sink(AgenticMessage{Kind: AgenticText, Text: string(line)})
			continue
		}
		sink(frame)
		d.mu.Lock()
		d.usage.OutputTokens += len(line) / 4
		d.mu.Unlock()
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return session, ctx.Err()
	}
	if waitErr != nil {
		return session, &errs.TransientProviderError{Provider: "cli:" + d.Command, Cause: waitErr}
	}
	return session, nil
}

func (d *CLIDriver) GetUsage() Usage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage
}

// CleanupSession is a no-op: the CLI driver holds no state between calls
// beyond what the subprocess itself persists on disk (e.g. a session file
// the tool manages), which outlives this process.
func (d *CLIDriver) CleanupSession(_ context.Context, _ state.DriverSession) (bool, error) {
	return false, nil
}
