// ABOUTME: Completer adapter that shells out to an external coding-agent CLI
// ABOUTME: Spawn-and-capture only; the child's stdout becomes the assistant text

package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIBackend runs an external agent binary once per completion, feeding the
// latest user message on stdin and capturing stdout as the response text.
// Tool calls are not supported through this adapter.
type CLIBackend struct {
	Command string
	Args    []string
}

// Complete spawns the configured command. Token usage is approximated from
// whitespace-separated word counts since CLI agents do not report usage.
func (c *CLIBackend) Complete(ctx context.Context, req Request, _ ToolExecutor) (*Result, error) {
	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			prompt = req.Messages[i].Content
			break
		}
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w (stderr: %s)",
			ErrUpstream, c.Command, err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	return &Result{
		Text: text,
		Usage: Usage{
			Input:  len(strings.Fields(prompt)),
			Output: len(strings.Fields(text)),
		},
	}, nil
}
