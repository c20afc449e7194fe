package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	commandSourceName = "command"
	commandTimeout    = 30 * time.Second
)

// CommandSource runs a local executable that prints {"data": [...]} to stdout.
type CommandSource struct {
	path    string
	args    []string
	timeout time.Duration
}

// NewCommand creates a command source. The path is checked on every Fetch.
func NewCommand(path string, args []string, timeout time.Duration) *CommandSource {
	if timeout <= 0 {
		timeout = commandTimeout
	}
	return &CommandSource{path: path, args: args, timeout: timeout}
}

func (c *CommandSource) Name() string { return commandSourceName }

func (c *CommandSource) Fetch(ctx context.Context) ([]string, error) {
	if strings.TrimSpace(c.path) == "" {
		return nil, fail(commandSourceName, KindInvalidRequest, fmt.Errorf("command path is required"))
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fail(commandSourceName, KindInvalidRequest, fmt.Errorf("command not found: %w", err))
	}
	if info.IsDir() {
		return nil, fail(commandSourceName, KindInvalidRequest, fmt.Errorf("%s is a directory, not an executable", c.path))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fail(commandSourceName, KindTransport,
			fmt.Errorf("run command: %w (stderr: %s)", err, strings.TrimSpace(stderr.String())))
	}

	texts, err := decodeTexts(stdout.Bytes())
	if err != nil {
		return nil, fail(commandSourceName, KindDecode, err)
	}
	return texts, nil
}
