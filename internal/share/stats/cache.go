// Package stats caches the capability snapshot a share backend reports
// about itself.
package stats

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/types"
)

// Values of the generic snapshot every backend starts from.
const (
	DefaultBackendName = "Generic_NFS"
	VendorName         = "Open Source"
	DriverVersion      = "1.0"
)

// Updater amends the generic snapshot with backend-specific values. The
// result replaces the cached snapshot.
type Updater func(ctx context.Context, generic types.ShareStats) (types.ShareStats, error)

// Cache holds the last computed snapshot. It starts uncomputed; a read
// without refresh on an uncomputed cache refreshes it first.
type Cache struct {
	opts    config.DriverOptions
	updater Updater
	logger  *zap.Logger

	mu       sync.RWMutex
	snapshot types.ShareStats
	computed bool

	refreshes singleflight.Group
}

// New returns an uncomputed cache. updater may be nil.
func New(opts config.DriverOptions, updater Updater, logger *zap.Logger) *Cache {
	logger = logging.OrNop(logger)
	return &Cache{
		opts:    opts,
		updater: updater,
		logger:  logger.Named("stats"),
	}
}

// Generic builds the snapshot shared by all backends from the driver
// options.
func Generic(opts config.DriverOptions) types.ShareStats {
	name := opts.ShareBackendName
	if name == "" {
		name = DefaultBackendName
	}
	return types.ShareStats{
		ShareBackendName:   name,
		VendorName:         VendorName,
		DriverVersion:      DriverVersion,
		StorageProtocol:    "",
		TotalCapacityGB:    types.Infinite,
		FreeCapacityGB:     types.Infinite,
		ReservedPercentage: opts.ReservedSharePercentage,
		QoSSupport:         false,
	}
}

// Get returns the cached snapshot, recomputing it first when refresh is
// set or nothing has been computed yet.
func (c *Cache) Get(ctx context.Context, refresh bool) (types.ShareStats, error) {
	if !refresh {
		c.mu.RLock()
		snapshot, computed := c.snapshot, c.computed
		c.mu.RUnlock()
		if computed {
			return snapshot, nil
		}
		c.logger.Debug("Share stats not computed yet, refreshing")
	}
	return c.Refresh(ctx)
}

// Refresh recomputes the snapshot. Concurrent refreshes share one update,
// which runs detached from the cancellation of whichever caller started
// it; a caller whose ctx ends first gets OPERATION_CANCELED while the
// update carries on for the others. On error the previous snapshot stays
// cached.
func (c *Cache) Refresh(ctx context.Context) (types.ShareStats, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan("refresh", func() (interface{}, error) {
		return c.update(shared)
	})

	select {
	case <-ctx.Done():
		return types.ShareStats{}, errors.Wrap(ctx.Err(), errors.ErrCodeOperationCanceled, "share stats refresh canceled").
			WithComponent("stats")
	case res := <-ch:
		if res.Err != nil {
			return types.ShareStats{}, res.Err
		}
		return res.Val.(types.ShareStats), nil
	}
}

func (c *Cache) update(ctx context.Context) (types.ShareStats, error) {
	snapshot := Generic(c.opts)
	if c.updater != nil {
		var err error
		snapshot, err = c.updater(ctx, snapshot)
		if err != nil {
			c.logger.Warn("Updating share stats failed", zap.Error(err))
			return types.ShareStats{}, err
		}
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.computed = true
	c.mu.Unlock()

	c.logger.Debug("Share stats updated",
		zap.String("share_backend_name", snapshot.ShareBackendName),
		zap.Stringer("total_capacity_gb", snapshot.TotalCapacityGB),
		zap.Stringer("free_capacity_gb", snapshot.FreeCapacityGB))
	return snapshot, nil
}

// Computed reports whether a snapshot has been computed.
func (c *Cache) Computed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.computed
}
