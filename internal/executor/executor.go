package executor

import (
	"context"
	stderr "errors"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/retry"
	"github.com/objectfs/sharedriver/pkg/types"
)

// Options tune a single command execution.
type Options struct {
	// CheckExitCode lists the exit codes treated as success. Empty means {0}.
	CheckExitCode []int

	// Stdin is written to the command's standard input
	Stdin string

	// Env adds environment variables to the command
	Env map[string]string

	// RunAsRoot prefixes the command with the root helper
	RunAsRoot bool
}

// AcceptsExitCode reports whether code counts as success.
func (o Options) AcceptsExitCode(code int) bool {
	if len(o.CheckExitCode) == 0 {
		return code == 0
	}
	for _, c := range o.CheckExitCode {
		if c == code {
			return true
		}
	}
	return false
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecuteFunc is the raw execution primitive. Implementations return a
// *ProcessExecutionError for failures that may succeed when run again.
type ExecuteFunc func(ctx context.Context, cmd string, args []string, opts Options) (Result, error)

// Executor runs management commands through a swappable primitive and
// retries transient failures.
type Executor struct {
	mu      sync.RWMutex
	execute ExecuteFunc

	tries   int
	retryer *retry.Retryer
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures an Executor.
type Option func(*executorOptions)

type executorOptions struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	clock   clock.Clock
}

// WithLogger sets the logger used for retry reports.
func WithLogger(l *zap.Logger) Option {
	return func(o *executorOptions) { o.logger = l }
}

// WithMetrics records executions and retries on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *executorOptions) { o.metrics = c }
}

// WithClock sets the clock backoff sleeps wait on.
func WithClock(c clock.Clock) Option {
	return func(o *executorOptions) { o.clock = c }
}

// New builds an Executor from the driver options. num_shell_tries bounds
// the total attempts of TryExecute; shell_backoff_unit scales the quadratic
// sleep between them.
func New(execute ExecuteFunc, driverOpts config.DriverOptions, opts ...Option) (*Executor, error) {
	if execute == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "execution primitive is required").
			WithComponent("executor")
	}
	if driverOpts.NumShellTries < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"num_shell_tries must be at least 1, got %d", driverOpts.NumShellTries).
			WithComponent("executor")
	}

	o := executorOptions{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)

	unit := driverOpts.ShellBackoffUnit
	if unit <= 0 {
		unit = time.Second
	}

	e := &Executor{
		execute: execute,
		tries:   driverOpts.NumShellTries,
		logger:  o.logger.Named("executor"),
		metrics: o.metrics,
	}
	e.retryer = retry.New(retry.Config{
		MaxAttempts: driverOpts.NumShellTries,
		Backoff:     retry.QuadraticBackoff(unit),
		IsRetryable: IsProcessExecutionError,
		OnRetry:     e.onRetry,
		Clock:       o.clock,
	})
	return e, nil
}

// IsProcessExecutionError reports whether err carries a
// *ProcessExecutionError.
func IsProcessExecutionError(err error) bool {
	var pe *ProcessExecutionError
	return stderr.As(err, &pe)
}

// SetExecute swaps the execution primitive.
func (e *Executor) SetExecute(execute ExecuteFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execute = execute
}

// Tries returns the configured number of attempts.
func (e *Executor) Tries() int {
	return e.tries
}

// Execute runs the command once.
func (e *Executor) Execute(ctx context.Context, cmd string, args []string, opts Options) (Result, error) {
	e.mu.RLock()
	execute := e.execute
	e.mu.RUnlock()

	start := time.Now()
	result, err := execute(ctx, cmd, args, opts)
	e.metrics.RecordExecution(time.Since(start), err)
	return result, err
}

// TryExecute runs the command, retrying transient failures with quadratic
// backoff until it succeeds or the attempts run out. Any other error is
// returned after the first attempt. Exhaustion yields a RETRY_EXHAUSTED
// error wrapping the last failure; cancelling ctx during a backoff yields
// OPERATION_CANCELED.
func (e *Executor) TryExecute(ctx context.Context, cmd string, args []string, opts Options) (Result, error) {
	var result Result
	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.Execute(ctx, cmd, args, opts)
		return err
	})
	if err != nil && errors.IsRetryExhausted(err) {
		e.metrics.RecordRetryExhausted()
		e.logger.Error("Command failed after all retries",
			zap.String("cmd", commandLine(cmd, args)),
			zap.Int("tries", e.tries),
			zap.String("request_id", types.RequestIDFrom(ctx)),
			zap.String("recommendation", errors.Recommendation(err)),
			zap.Error(err))
	}
	return result, err
}

func (e *Executor) onRetry(attempt int, err error, delay time.Duration) {
	e.metrics.RecordRetry()
	e.logger.Warn("Recovering from a failed execute",
		zap.Int("try", attempt),
		zap.Duration("backoff", delay),
		zap.Error(err))
}

func commandLine(cmd string, args []string) string {
	return strings.Join(append([]string{cmd}, args...), " ")
}
