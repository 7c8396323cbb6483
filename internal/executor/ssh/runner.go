package ssh

import (
	"context"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// Runner executes commands on an appliance over pooled SSH connections.
type Runner struct {
	pool       *Pool
	rootHelper string
	logger     *zap.Logger
}

// NewRunner returns a Runner drawing connections from pool.
func NewRunner(pool *Pool, rootHelper string, logger *zap.Logger) *Runner {
	rootHelper = strings.TrimSpace(rootHelper)
	if rootHelper == "" {
		rootHelper = executor.DefaultRootHelper
	}
	logger = logging.OrNop(logger)
	return &Runner{
		pool:       pool,
		rootHelper: rootHelper,
		logger:     logger.Named("ssh").With(zap.String("host", pool.Host())),
	}
}

// Execute implements executor.ExecuteFunc. Session and dial failures are
// reported as a *executor.ProcessExecutionError with exit code -1 so the
// executor retries them; an open circuit breaker, a closed pool or a done
// context are returned as they are.
func (r *Runner) Execute(ctx context.Context, cmd string, args []string, opts executor.Options) (executor.Result, error) {
	line := r.commandLine(cmd, args, opts)

	client, err := r.pool.Get(ctx)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeConnectionFailed) {
			return executor.Result{ExitCode: -1}, &wrappedProcessError{
				ProcessExecutionError: executor.NewProcessExecutionError(line, -1, "", "", err.Error()),
				cause:                 err,
			}
		}
		return executor.Result{ExitCode: -1}, err
	}

	r.logger.Debug("Running command", zap.String("cmd", line))
	result, err := client.Run(ctx, line, opts.Stdin)
	if err != nil {
		r.pool.Discard(client)
		if ctx.Err() != nil {
			return result, errors.Wrap(ctx.Err(), errors.ErrCodeOperationCanceled, "ssh command canceled").
				WithComponent("ssh")
		}
		return result, executor.NewProcessExecutionError(line, -1, result.Stdout, result.Stderr, err.Error())
	}
	r.pool.Put(client)

	if !opts.AcceptsExitCode(result.ExitCode) {
		return result, executor.NewProcessExecutionError(line, result.ExitCode, result.Stdout, result.Stderr, "")
	}
	return result, nil
}

// commandLine quotes argv for the remote shell, prefixing env assignments
// and the root helper when asked.
func (r *Runner) commandLine(cmd string, args []string, opts executor.Options) string {
	argv := append([]string{cmd}, args...)

	if len(opts.Env) > 0 {
		keys := make([]string, 0, len(opts.Env))
		for k := range opts.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := []string{"env"}
		for _, k := range keys {
			env = append(env, k+"="+opts.Env[k])
		}
		argv = append(env, argv...)
	}

	line := shellquote.Join(argv...)
	if opts.RunAsRoot {
		line = r.rootHelper + " " + line
	}
	return line
}

// wrappedProcessError keeps the dial failure reachable from the
// ProcessExecutionError built for it.
type wrappedProcessError struct {
	*executor.ProcessExecutionError
	cause error
}

func (e *wrappedProcessError) Unwrap() []error {
	return []error{e.ProcessExecutionError, e.cause}
}
