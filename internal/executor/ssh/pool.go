package ssh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/sharedriver/internal/circuit"
	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// Client is one open connection to an appliance.
type Client interface {
	// Run executes command and returns its output. A non-nil error means
	// the session itself failed; a command that ran and exited non-zero
	// is reported through Result.ExitCode.
	Run(ctx context.Context, command string, stdin string) (executor.Result, error)
	Close() error
}

// DialFunc opens a new Client.
type DialFunc func(ctx context.Context) (Client, error)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Host        string
	MinConn     int
	MaxConn     int
	DialTimeout time.Duration

	Breaker *circuit.CircuitBreaker
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// PoolConfigFrom maps the SSH options onto a PoolConfig.
func PoolConfigFrom(opts config.SSHOptions) PoolConfig {
	return PoolConfig{
		Host:        opts.Host,
		MinConn:     opts.MinPoolConn,
		MaxConn:     opts.MaxPoolConn,
		DialTimeout: opts.ConnTimeoutDuration(),
	}
}

// Pool keeps between MinConn and MaxConn connections to one appliance.
// Every open connection, idle or checked out, holds one slot; Get blocks
// when all slots are taken.
type Pool struct {
	cfg  PoolConfig
	dial DialFunc

	slots chan struct{}
	idle  chan Client

	mu     sync.Mutex
	closed int32
	logger *zap.Logger
}

// NewPool creates the pool and dials MinConn connections up front.
func NewPool(ctx context.Context, cfg PoolConfig, dial DialFunc) (*Pool, error) {
	if dial == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "ssh dial function is required").
			WithComponent("ssh")
	}
	if cfg.MaxConn < 1 {
		cfg.MaxConn = 1
	}
	if cfg.MinConn < 0 {
		cfg.MinConn = 0
	}
	if cfg.MinConn > cfg.MaxConn {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"ssh_min_pool_conn (%d) exceeds ssh_max_pool_conn (%d)", cfg.MinConn, cfg.MaxConn).
			WithComponent("ssh")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 60 * time.Second
	}
	cfg.Logger = logging.OrNop(cfg.Logger)

	p := &Pool{
		cfg:    cfg,
		dial:   dial,
		slots:  make(chan struct{}, cfg.MaxConn),
		idle:   make(chan Client, cfg.MaxConn),
		logger: cfg.Logger.Named("ssh_pool").With(zap.String("host", cfg.Host)),
	}

	warm := make([]Client, cfg.MinConn)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.MinConn; i++ {
		i := i
		p.slots <- struct{}{}
		g.Go(func() error {
			c, err := p.open(gctx)
			if err != nil {
				return err
			}
			warm[i] = c
			return nil
		})
	}
	err := g.Wait()
	for _, c := range warm {
		if c == nil {
			p.release()
			continue
		}
		p.idle <- c
	}
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	p.logger.Debug("SSH pool ready",
		zap.Int("min_conn", cfg.MinConn),
		zap.Int("max_conn", cfg.MaxConn))
	p.report()
	return p, nil
}

// Get returns an idle connection, dials a new one while below MaxConn, or
// waits for one to be returned.
func (p *Pool) Get(ctx context.Context) (Client, error) {
	if p.isClosed() {
		return nil, p.closedError()
	}

	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	select {
	case c := <-p.idle:
		return c, nil
	case p.slots <- struct{}{}:
		c, err := p.open(ctx)
		if err != nil {
			p.release()
			return nil, err
		}
		p.report()
		return c, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrCodeConnectionTimeout, "timed out waiting for a pooled ssh connection").
			WithComponent("ssh").
			WithDetail("host", p.cfg.Host)
	}
}

// Put returns a healthy connection to the pool.
func (p *Pool) Put(c Client) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if p.isClosed() {
		p.mu.Unlock()
		p.Discard(c)
		return
	}
	p.idle <- c
	p.mu.Unlock()
}

// Discard closes a broken connection and frees its slot.
func (p *Pool) Discard(c Client) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		p.logger.Debug("Closing discarded connection failed", zap.Error(err))
	}
	p.release()
	p.report()
}

// Open returns the number of connections currently open.
func (p *Pool) Open() int {
	return len(p.slots)
}

// Host returns the appliance address this pool connects to.
func (p *Pool) Host() string {
	return p.cfg.Host
}

// Close closes idle connections. Connections checked out at the time are
// closed when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
			p.release()
		default:
			p.report()
			return nil
		}
	}
}

func (p *Pool) open(ctx context.Context) (Client, error) {
	var c Client
	err := p.cfg.Breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()

		var err error
		c, err = p.dial(dctx)
		return err
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeCircuitOpen) {
			return nil, err
		}
		p.logger.Warn("SSH dial failed", zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to open ssh connection").
			WithComponent("ssh").
			WithDetail("host", p.cfg.Host)
	}
	return c, nil
}

func (p *Pool) release() {
	select {
	case <-p.slots:
	default:
	}
}

func (p *Pool) report() {
	p.cfg.Metrics.UpdatePoolConnections(p.cfg.Host, p.Open())
}

func (p *Pool) isClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

func (p *Pool) closedError() error {
	return errors.NewError(errors.ErrCodePoolClosed, "ssh connection pool is closed").
		WithComponent("ssh").
		WithDetail("host", p.cfg.Host)
}
