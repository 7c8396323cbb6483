package driver

import (
	"context"

	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/circuit"
	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/executor/ssh"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// ExecutorOptions are the option sets an executor is built from.
type ExecutorOptions struct {
	Driver  config.DriverOptions
	SSH     config.SSHOptions
	Breaker config.CircuitBreakerConfig
}

// ResolveExecutorOptions reads the executor option sets of cfg's group.
func ResolveExecutorOptions(cfg *config.Configuration) (ExecutorOptions, error) {
	var (
		opts ExecutorOptions
		err  error
	)
	if opts.Driver, err = cfg.DriverOptions(); err != nil {
		return opts, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid driver options")
	}
	if opts.SSH, err = cfg.SSHOptions(); err != nil {
		return opts, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid ssh options")
	}
	if opts.Breaker, err = cfg.CircuitBreaker(); err != nil {
		return opts, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid circuit breaker options")
	}
	return opts, nil
}

// NewExecutor builds the executor for cfg's group. See BuildExecutor.
func NewExecutor(ctx context.Context, cfg *config.Configuration, logger *zap.Logger, m *metrics.Collector) (*executor.Executor, func() error, error) {
	opts, err := ResolveExecutorOptions(cfg)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return BuildExecutor(ctx, opts, logger, m)
}

// BuildExecutor builds an executor from opts. With an SSH host set,
// commands run on the appliance over a pooled SSH channel guarded by a
// circuit breaker; otherwise they run on this host. The returned func
// releases the SSH pool and is never nil.
func BuildExecutor(ctx context.Context, opts ExecutorOptions, logger *zap.Logger, m *metrics.Collector) (*executor.Executor, func() error, error) {
	logger = logging.OrNop(logger)
	nothing := func() error { return nil }
	execOpts := []executor.Option{executor.WithLogger(logger), executor.WithMetrics(m)}

	if opts.SSH.Host == "" {
		exec, err := executor.New(executor.NewLocal(opts.Driver.RootHelper), opts.Driver, execOpts...)
		return exec, nothing, err
	}

	dial, err := ssh.NewDialer(opts.SSH, logger)
	if err != nil {
		return nil, nothing, err
	}

	cb := circuit.ConfigFrom(opts.Breaker)
	cb.OnStateChange = circuit.LogStateChanges(logger)

	poolCfg := ssh.PoolConfigFrom(opts.SSH)
	poolCfg.Breaker = circuit.NewCircuitBreaker("ssh:"+opts.SSH.Host, cb)
	poolCfg.Logger = logger
	poolCfg.Metrics = m

	pool, err := ssh.NewPool(ctx, poolCfg, dial)
	if err != nil {
		return nil, nothing, err
	}

	exec, err := executor.New(ssh.NewRunner(pool, opts.Driver.RootHelper, logger).Execute, opts.Driver, execOpts...)
	if err != nil {
		_ = pool.Close()
		return nil, nothing, err
	}
	return exec, pool.Close, nil
}
