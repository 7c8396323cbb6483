package driver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/internal/share/network"
	"github.com/objectfs/sharedriver/internal/share/stats"
	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/health"
	"github.com/objectfs/sharedriver/pkg/types"
)

// Params configures a Driver.
type Params struct {
	// Backend implements the storage operations (required)
	Backend Backend

	// Config is bound to the backend's option group (required)
	Config *config.Configuration

	// Executor runs backend commands; nil builds a local one
	Executor *executor.Executor

	// NetworkAPI is the network allocation service; nil is fine for
	// backends that need no allocations
	NetworkAPI network.API

	// Lifecycle tracks share servers when set
	Lifecycle *Lifecycle

	// Health receives the outcome of every backend operation when set
	Health *health.Tracker

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Driver is the surface the share service calls. It forwards storage
// operations to the backend and owns the pieces every backend shares.
type Driver struct {
	backend   Backend
	config    *config.Configuration
	executor  *executor.Executor
	stats     *stats.Cache
	network   *network.Coordinator
	lifecycle *Lifecycle
	health    *health.Tracker
	component string
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// New assembles a Driver from p.
func New(p Params) (*Driver, error) {
	if p.Backend == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "driver needs a backend").
			WithComponent("driver")
	}
	if p.Config == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "driver needs a configuration").
			WithComponent("driver")
	}
	logger := p.Logger
	logger = logging.OrNop(logger)
	logger = logger.Named("driver").With(zap.String("config_group", p.Config.ConfigGroup()))

	opts, err := p.Config.DriverOptions()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid driver options").
			WithComponent("driver")
	}

	exec := p.Executor
	if exec == nil {
		exec, err = executor.New(executor.NewLocal(opts.RootHelper), opts,
			executor.WithLogger(logger), executor.WithMetrics(p.Metrics))
		if err != nil {
			return nil, err
		}
	}

	component := "backend/" + p.Config.ConfigGroup()
	if p.Health != nil {
		p.Health.RegisterComponent(component)
	}

	var updater stats.Updater
	if su, ok := p.Backend.(StatsUpdater); ok {
		updater = su.UpdateShareStats
	}

	return &Driver{
		backend:   p.Backend,
		config:    p.Config,
		executor:  exec,
		stats:     stats.New(opts, updater, logger),
		network:   network.NewCoordinator(p.NetworkAPI, p.Backend, p.Config.NetworkConfigGroup(), logger, p.Metrics),
		lifecycle: p.Lifecycle,
		health:    p.Health,
		component: component,
		logger:    logger,
		metrics:   p.Metrics,
	}, nil
}

// Executor returns the executor backends run their commands through.
func (d *Driver) Executor() *executor.Executor {
	return d.executor
}

// Config returns the configuration bound to the backend's group.
func (d *Driver) Config() *config.Configuration {
	return d.config
}

// Lifecycle returns the attached tracker, or nil.
func (d *Driver) Lifecycle() *Lifecycle {
	return d.lifecycle
}

// Health returns the attached tracker, or nil.
func (d *Driver) Health() *health.Tracker {
	return d.health
}

// HealthComponent is the name the driver reports backend health under.
func (d *Driver) HealthComponent() string {
	return d.component
}

// NetworkConfigGroup returns the group the network service reads from.
func (d *Driver) NetworkConfigGroup() string {
	return d.network.ConfigGroup()
}

func (d *Driver) CreateShare(ctx context.Context, share types.Share, server *types.ShareServer) (string, error) {
	var location string
	err := d.observe(ctx, OpCreateShare, shareFields(share, server), func() error {
		var err error
		location, err = d.backend.CreateShare(ctx, share, server)
		return err
	})
	return location, err
}

func (d *Driver) CreateShareFromSnapshot(ctx context.Context, share types.Share, snapshot types.Snapshot, server *types.ShareServer) (string, error) {
	var location string
	fields := append(shareFields(share, server), zap.String("snapshot_id", snapshot.ID))
	err := d.observe(ctx, OpCreateShareFromSnapshot, fields, func() error {
		var err error
		location, err = d.backend.CreateShareFromSnapshot(ctx, share, snapshot, server)
		return err
	})
	return location, err
}

func (d *Driver) CreateSnapshot(ctx context.Context, snapshot types.Snapshot, server *types.ShareServer) error {
	return d.observe(ctx, OpCreateSnapshot, snapshotFields(snapshot, server), func() error {
		return d.backend.CreateSnapshot(ctx, snapshot, server)
	})
}

func (d *Driver) DeleteShare(ctx context.Context, share types.Share, server *types.ShareServer) error {
	return d.observe(ctx, OpDeleteShare, shareFields(share, server), func() error {
		return d.backend.DeleteShare(ctx, share, server)
	})
}

func (d *Driver) DeleteSnapshot(ctx context.Context, snapshot types.Snapshot, server *types.ShareServer) error {
	return d.observe(ctx, OpDeleteSnapshot, snapshotFields(snapshot, server), func() error {
		return d.backend.DeleteSnapshot(ctx, snapshot, server)
	})
}

func (d *Driver) EnsureShare(ctx context.Context, share types.Share, server *types.ShareServer) error {
	return d.observe(ctx, OpEnsureShare, shareFields(share, server), func() error {
		return d.backend.EnsureShare(ctx, share, server)
	})
}

func (d *Driver) AllowAccess(ctx context.Context, share types.Share, access types.AccessRule, server *types.ShareServer) error {
	fields := append(shareFields(share, server), accessFields(access)...)
	return d.observe(ctx, OpAllowAccess, fields, func() error {
		return d.backend.AllowAccess(ctx, share, access, server)
	})
}

func (d *Driver) DenyAccess(ctx context.Context, share types.Share, access types.AccessRule, server *types.ShareServer) error {
	fields := append(shareFields(share, server), accessFields(access)...)
	return d.observe(ctx, OpDenyAccess, fields, func() error {
		return d.backend.DenyAccess(ctx, share, access, server)
	})
}

func (d *Driver) GetNetworkAllocationsNumber(ctx context.Context) (int, error) {
	var n int
	err := d.observe(ctx, OpGetNetworkAllocationsNumber, nil, func() error {
		var err error
		n, err = d.backend.GetNetworkAllocationsNumber(ctx)
		return err
	})
	return n, err
}

// CheckForSetupError verifies the backend's prerequisites. Failures carry
// SETUP_FAILED.
func (d *Driver) CheckForSetupError(ctx context.Context) error {
	checker, ok := d.backend.(SetupChecker)
	if !ok {
		return nil
	}
	return d.observe(ctx, OpCheckForSetupError, nil, func() error {
		return setupFailed(OpCheckForSetupError, checker.CheckForSetupError(ctx))
	})
}

// DoSetup runs the backend's one-time setup. Failures carry SETUP_FAILED.
func (d *Driver) DoSetup(ctx context.Context) error {
	initializer, ok := d.backend.(Initializer)
	if !ok {
		return nil
	}
	return d.observe(ctx, OpDoSetup, nil, func() error {
		return setupFailed(OpDoSetup, initializer.DoSetup(ctx))
	})
}

// GetShareStats returns the capability snapshot, recomputing it first when
// refresh is set.
func (d *Driver) GetShareStats(ctx context.Context, refresh bool) (types.ShareStats, error) {
	return d.stats.Get(ctx, refresh)
}

// AllocateNetwork asks the network service for the allocations server
// needs. A nil count uses the backend's own number.
func (d *Driver) AllocateNetwork(ctx context.Context, server types.ShareServer, shareNetwork types.ShareNetwork, count *int, extra map[string]interface{}) error {
	fields := []zap.Field{zap.String("server_id", server.ID), zap.String("share_network_id", shareNetwork.ID)}
	return d.track(server.ID, StateNetworkReady, func() error {
		return d.observe(ctx, OpAllocateNetwork, fields, func() error {
			return d.network.Allocate(ctx, server, shareNetwork, count, extra)
		})
	})
}

// DeallocateNetwork releases the allocations of serverID.
func (d *Driver) DeallocateNetwork(ctx context.Context, serverID string) error {
	return d.track(serverID, StateUnallocated, func() error {
		return d.observe(ctx, OpDeallocateNetwork, []zap.Field{zap.String("server_id", serverID)}, func() error {
			return d.network.Deallocate(ctx, serverID)
		})
	})
}

// SetupServer prepares a share server on its allocated network. Backends
// without share servers return no details.
func (d *Driver) SetupServer(ctx context.Context, info types.NetworkInfo, metadata map[string]string) (types.ServerDetails, error) {
	var details types.ServerDetails
	err := d.track(info.ServerID, StateActive, func() error {
		manager, ok := d.backend.(ServerManager)
		if !ok {
			return nil
		}
		return d.observe(ctx, OpSetupServer, []zap.Field{zap.String("server_id", info.ServerID)}, func() error {
			var err error
			details, err = manager.SetupServer(ctx, info, metadata)
			return err
		})
	})
	return details, err
}

// TeardownServer releases whatever SetupServer created for server.
func (d *Driver) TeardownServer(ctx context.Context, server types.ShareServer, securityServices []types.SecurityService) error {
	return d.track(server.ID, StateTornDown, func() error {
		manager, ok := d.backend.(ServerManager)
		if !ok {
			return nil
		}
		return d.observe(ctx, OpTeardownServer, []zap.Field{zap.String("server_id", server.ID)}, func() error {
			return manager.TeardownServer(ctx, server.BackendDetails, securityServices)
		})
	})
}

// track runs fn and moves serverID to next on success. A server in the
// wrong state fails with INVALID_STATE before fn runs.
func (d *Driver) track(serverID string, next ServerState, fn func() error) error {
	if d.lifecycle == nil {
		return fn()
	}
	if err := d.lifecycle.Check(serverID, next); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return d.lifecycle.Transition(serverID, next)
}

func (d *Driver) observe(ctx context.Context, op string, fields []zap.Field, fn func() error) error {
	logger := d.logger.With(zap.String("operation", op))
	id := types.RequestIDFrom(ctx)
	if id != "" {
		logger = logger.With(zap.String("request_id", id))
	}
	logger.Debug("Driver operation started", fields...)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	d.metrics.RecordOperation(op, elapsed, err == nil)
	d.health.Record(d.component, err)
	if err != nil {
		d.metrics.RecordError(op, err)
		fields = append(fields, zap.Duration("duration", elapsed), zap.Error(err))
		if de, ok := err.(*errors.DriverError); ok {
			if id != "" && de.RequestID == "" {
				stamped := *de
				err = stamped.WithRequestID(id)
				de = &stamped
			}
			fields = append(fields, zap.String("error_detail", de.String()))
		}
		logger.Debug("Driver operation failed", fields...)
		return err
	}
	logger.Debug("Driver operation finished", append(fields, zap.Duration("duration", elapsed))...)
	return nil
}

func setupFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.ErrCodeSetupFailed, "backend setup failed").
		WithComponent("driver").
		WithOperation(op)
}

func shareFields(share types.Share, server *types.ShareServer) []zap.Field {
	fields := []zap.Field{zap.String("share_id", share.ID)}
	if server != nil {
		fields = append(fields, zap.String("server_id", server.ID))
	}
	return fields
}

func snapshotFields(snapshot types.Snapshot, server *types.ShareServer) []zap.Field {
	fields := []zap.Field{zap.String("snapshot_id", snapshot.ID), zap.String("share_id", snapshot.ShareID)}
	if server != nil {
		fields = append(fields, zap.String("server_id", server.ID))
	}
	return fields
}

func accessFields(access types.AccessRule) []zap.Field {
	return []zap.Field{
		zap.String("access_type", string(access.AccessType)),
		zap.String("access_to", access.AccessTo),
	}
}
