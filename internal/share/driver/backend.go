package driver

import (
	"context"

	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/types"
)

// Backend is the set of operations every storage backend must provide.
// server is nil for backends that do not use share servers.
type Backend interface {
	// CreateShare provisions share and returns its export location.
	CreateShare(ctx context.Context, share types.Share, server *types.ShareServer) (string, error)

	// CreateShareFromSnapshot provisions share from snapshot and returns
	// its export location.
	CreateShareFromSnapshot(ctx context.Context, share types.Share, snapshot types.Snapshot, server *types.ShareServer) (string, error)

	CreateSnapshot(ctx context.Context, snapshot types.Snapshot, server *types.ShareServer) error
	DeleteShare(ctx context.Context, share types.Share, server *types.ShareServer) error
	DeleteSnapshot(ctx context.Context, snapshot types.Snapshot, server *types.ShareServer) error

	// EnsureShare makes sure an existing share is exported, e.g. after a
	// service restart.
	EnsureShare(ctx context.Context, share types.Share, server *types.ShareServer) error

	AllowAccess(ctx context.Context, share types.Share, access types.AccessRule, server *types.ShareServer) error
	DenyAccess(ctx context.Context, share types.Share, access types.AccessRule, server *types.ShareServer) error

	// GetNetworkAllocationsNumber returns how many network allocations a
	// share server of this backend needs. Backends that leave networking
	// to the compute service return zero.
	GetNetworkAllocationsNumber(ctx context.Context) (int, error)
}

// SetupChecker is implemented by backends that can verify their
// prerequisites before serving requests.
type SetupChecker interface {
	CheckForSetupError(ctx context.Context) error
}

// Initializer is implemented by backends with one-time setup work.
type Initializer interface {
	DoSetup(ctx context.Context) error
}

// ServerManager is implemented by backends that host shares on share
// servers.
type ServerManager interface {
	SetupServer(ctx context.Context, info types.NetworkInfo, metadata map[string]string) (types.ServerDetails, error)
	TeardownServer(ctx context.Context, details types.ServerDetails, securityServices []types.SecurityService) error
}

// StatsUpdater is implemented by backends that report their own
// capabilities. It receives the generic snapshot and returns the amended
// one.
type StatsUpdater interface {
	UpdateShareStats(ctx context.Context, generic types.ShareStats) (types.ShareStats, error)
}

// UnimplementedBackend can be embedded to satisfy Backend. Every method
// fails with NOT_IMPLEMENTED until the embedding type overrides it.
type UnimplementedBackend struct{}

var _ Backend = UnimplementedBackend{}

func (UnimplementedBackend) CreateShare(context.Context, types.Share, *types.ShareServer) (string, error) {
	return "", errors.NotImplemented(OpCreateShare)
}

func (UnimplementedBackend) CreateShareFromSnapshot(context.Context, types.Share, types.Snapshot, *types.ShareServer) (string, error) {
	return "", errors.NotImplemented(OpCreateShareFromSnapshot)
}

func (UnimplementedBackend) CreateSnapshot(context.Context, types.Snapshot, *types.ShareServer) error {
	return errors.NotImplemented(OpCreateSnapshot)
}

func (UnimplementedBackend) DeleteShare(context.Context, types.Share, *types.ShareServer) error {
	return errors.NotImplemented(OpDeleteShare)
}

func (UnimplementedBackend) DeleteSnapshot(context.Context, types.Snapshot, *types.ShareServer) error {
	return errors.NotImplemented(OpDeleteSnapshot)
}

func (UnimplementedBackend) EnsureShare(context.Context, types.Share, *types.ShareServer) error {
	return errors.NotImplemented(OpEnsureShare)
}

func (UnimplementedBackend) AllowAccess(context.Context, types.Share, types.AccessRule, *types.ShareServer) error {
	return errors.NotImplemented(OpAllowAccess)
}

func (UnimplementedBackend) DenyAccess(context.Context, types.Share, types.AccessRule, *types.ShareServer) error {
	return errors.NotImplemented(OpDenyAccess)
}

func (UnimplementedBackend) GetNetworkAllocationsNumber(context.Context) (int, error) {
	return 0, errors.NotImplemented(OpGetNetworkAllocationsNumber)
}

// Operation names used in logs, metrics and errors.
const (
	OpCreateShare                 = "create_share"
	OpCreateShareFromSnapshot     = "create_share_from_snapshot"
	OpCreateSnapshot              = "create_snapshot"
	OpDeleteShare                 = "delete_share"
	OpDeleteSnapshot              = "delete_snapshot"
	OpEnsureShare                 = "ensure_share"
	OpAllowAccess                 = "allow_access"
	OpDenyAccess                  = "deny_access"
	OpGetNetworkAllocationsNumber = "get_network_allocations_number"
	OpCheckForSetupError          = "check_for_setup_error"
	OpDoSetup                     = "do_setup"
	OpAllocateNetwork             = "allocate_network"
	OpDeallocateNetwork           = "deallocate_network"
	OpSetupServer                 = "setup_server"
	OpTeardownServer              = "teardown_server"
)
