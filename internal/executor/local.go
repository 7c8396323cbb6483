package executor

import (
	"bytes"
	"context"
	stderr "errors"
	"os"
	"os/exec"
	"strings"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// DefaultRootHelper prefixes commands run with RunAsRoot.
const DefaultRootHelper = "sudo"

// Local runs commands as child processes of this host.
type Local struct {
	RootHelper string
}

// NewLocal returns the local execution primitive.
func NewLocal(rootHelper string) ExecuteFunc {
	if strings.TrimSpace(rootHelper) == "" {
		rootHelper = DefaultRootHelper
	}
	return Local{RootHelper: rootHelper}.Execute
}

// Execute implements ExecuteFunc. An exit code outside opts.CheckExitCode,
// or a failure to start the process, is reported as a
// *ProcessExecutionError.
func (l Local) Execute(ctx context.Context, cmd string, args []string, opts Options) (Result, error) {
	name, argv := cmd, args
	if opts.RunAsRoot {
		fields := strings.Fields(l.RootHelper)
		if len(fields) == 0 {
			fields = []string{DefaultRootHelper}
		}
		name = fields[0]
		argv = append(append(fields[1:], cmd), args...)
	}

	c := exec.CommandContext(ctx, name, argv...)
	var stdout, errout bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &errout
	if opts.Stdin != "" {
		c.Stdin = strings.NewReader(opts.Stdin)
	}
	if len(opts.Env) > 0 {
		c.Env = os.Environ()
		for k, v := range opts.Env {
			c.Env = append(c.Env, k+"="+v)
		}
	}

	line := commandLine(name, argv)
	err := c.Run()
	result := Result{Stdout: stdout.String(), Stderr: errout.String()}
	if err != nil && ctx.Err() != nil {
		result.ExitCode = -1
		return result, errors.Wrap(ctx.Err(), errors.ErrCodeOperationCanceled, "command canceled").
			WithComponent("executor").
			WithDetail("command", line)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case stderr.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		return result, NewProcessExecutionError(line, -1, result.Stdout, result.Stderr, err.Error())
	}

	if !opts.AcceptsExitCode(result.ExitCode) {
		return result, NewProcessExecutionError(line, result.ExitCode, result.Stdout, result.Stderr, "")
	}
	return result, nil
}
