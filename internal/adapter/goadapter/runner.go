package goadapter

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandRunner executes one external tool in a repository directory
// and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command []string) ([]byte, error)
}

type execRunner struct{}

// NewExecRunner returns the production runner backed by os/exec.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir string, command []string) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
