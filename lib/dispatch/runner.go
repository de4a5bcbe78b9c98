package dispatch

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/riywo/loginshell"
)

const DefaultShell = "/bin/sh"

// Runner executes a rendered command line and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, cmdline string, stdout, stderr io.Writer) error
}

// ShellRunner runs command lines through "shell -c", or splits them into an
// argument vector when no shell is wanted.
type ShellRunner struct {
	shell   string
	noShell bool
}

// NewShellRunner returns a runner using shell. An empty shell means
// /bin/sh and "login" the login shell of the current user.
func NewShellRunner(shell string, noShell bool) (*ShellRunner, error) {
	switch shell {
	case "":
		shell = DefaultShell
	case "login":
		s, err := loginshell.Shell()
		if err != nil {
			return nil, errors.Wrap(err, "login shell")
		}
		shell = s
	}
	return &ShellRunner{shell: shell, noShell: noShell}, nil
}

func (r *ShellRunner) Shell() string {
	return r.shell
}

func (r *ShellRunner) command(ctx context.Context, cmdline string) (*exec.Cmd, error) {
	if !r.noShell {
		return exec.CommandContext(ctx, r.shell, "-c", cmdline), nil
	}
	args, err := shlex.Split(cmdline)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified")
	}
	return exec.CommandContext(ctx, args[0], args[1:]...), nil
}

func (r *ShellRunner) Run(ctx context.Context, cmdline string, stdout, stderr io.Writer) error {
	cmd, err := r.command(ctx, cmdline)
	if err != nil {
		return err
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}
