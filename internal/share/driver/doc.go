/*
Package driver defines the contract between the share service and a storage
backend, and the Driver that wraps a backend with the pieces every backend
shares.

# Architecture

	            share service
	                  │
	              ┌───▼────┐
	              │ Driver │ debug logs, operation metrics, lifecycle
	              └───┬────┘
	   ┌──────────────┼──────────────┬──────────────┐
	┌──▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼──────┐
	│Backend │  │stats.Cache│  │network.   │  │executor.   │
	│        │  │           │  │Coordinator│  │Executor    │
	└────────┘  └───────────┘  └───────────┘  └────────────┘

A backend implements Backend, usually by embedding UnimplementedBackend and
overriding what it supports. Operations it leaves out fail with a
NOT_IMPLEMENTED error. Optional behavior is picked up through the
SetupChecker, Initializer, ServerManager and StatsUpdater interfaces; a
backend that implements none of them gets no-op setup and the generic
capability snapshot.

# Usage

	type backend struct {
		driver.UnimplementedBackend
		exec *executor.Executor
	}

	func (b *backend) CreateShare(ctx context.Context, share types.Share, server *types.ShareServer) (string, error) {
		_, err := b.exec.TryExecute(ctx, "mkdir", []string{"-p", "/shares/" + share.ID}, executor.Options{RunAsRoot: true})
		if err != nil {
			return "", err
		}
		return "10.0.0.5:/shares/" + share.ID, nil
	}

	exec, closeExec, err := driver.NewExecutor(ctx, cfg, logger, collector)
	defer closeExec()
	d, err := driver.New(driver.Params{
		Backend:   &backend{exec: exec},
		Config:    cfg,
		Executor:  exec,
		Lifecycle: driver.NewLifecycle(),
		Logger:    logger,
		Metrics:   collector,
	})

# Share servers

With a Lifecycle attached, the Driver refuses server operations issued out
of order:

	AllocateNetwork   UNALLOCATED   → NETWORK_READY
	SetupServer       NETWORK_READY → ACTIVE
	TeardownServer    ACTIVE        → TORN_DOWN
	DeallocateNetwork TORN_DOWN     → UNALLOCATED (or NETWORK_READY → UNALLOCATED)

A failed step leaves the server where it was.
*/
package driver
