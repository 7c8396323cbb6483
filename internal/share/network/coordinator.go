// Package network forwards share server network allocation to an external
// allocation service, guarded by the backend's declared allocation count.
package network

import (
	"context"

	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/types"
)

// AllocateOptions is the payload forwarded to the allocation service.
type AllocateOptions struct {
	// Count is the number of allocations to create
	Count int

	// Extra carries caller-supplied keys through unchanged
	Extra map[string]interface{}
}

// API is the external network allocation service.
type API interface {
	AllocateNetwork(ctx context.Context, server types.ShareServer, shareNetwork types.ShareNetwork, opts AllocateOptions) error
	DeallocateNetwork(ctx context.Context, serverID string) error
}

// AllocationCounter reports how many network allocations a backend needs
// per share server. Zero means the backend handles networking itself.
type AllocationCounter interface {
	GetNetworkAllocationsNumber(ctx context.Context) (int, error)
}

// Coordinator decides whether the allocation service is called at all.
type Coordinator struct {
	api     API
	counter AllocationCounter
	group   string
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCoordinator binds api to the backend's allocation count. group is the
// configuration group the allocation service reads its options from.
func NewCoordinator(api API, counter AllocationCounter, group string, logger *zap.Logger, m *metrics.Collector) *Coordinator {
	logger = logging.OrNop(logger)
	return &Coordinator{
		api:     api,
		counter: counter,
		group:   group,
		logger:  logger.Named("network").With(zap.String("config_group", group)),
		metrics: m,
	}
}

// ConfigGroup returns the configuration group of the allocation service.
func (c *Coordinator) ConfigGroup() string {
	return c.group
}

// Allocate requests network allocations for server. A nil count is taken
// from the backend; a zero count skips the service. Service errors are
// returned unchanged.
func (c *Coordinator) Allocate(ctx context.Context, server types.ShareServer, shareNetwork types.ShareNetwork, count *int, extra map[string]interface{}) error {
	n, err := c.resolveCount(ctx, count)
	if err != nil {
		return err
	}
	if n == 0 {
		c.logger.Debug("Backend needs no network allocations, skipping",
			zap.String("server_id", server.ID))
		return nil
	}
	if c.api == nil {
		return missingAPI()
	}

	c.logger.Debug("Allocating network",
		zap.String("server_id", server.ID),
		zap.String("share_network_id", shareNetwork.ID),
		zap.Int("count", n))

	err = c.api.AllocateNetwork(ctx, server, shareNetwork, AllocateOptions{Count: n, Extra: extra})
	c.metrics.RecordNetworkCall("allocate", err == nil)
	return err
}

// Deallocate releases the allocations of serverID when the backend uses
// any. Service errors are returned unchanged.
func (c *Coordinator) Deallocate(ctx context.Context, serverID string) error {
	n, err := c.resolveCount(ctx, nil)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if c.api == nil {
		return missingAPI()
	}

	c.logger.Debug("Deallocating network", zap.String("server_id", serverID))
	err = c.api.DeallocateNetwork(ctx, serverID)
	c.metrics.RecordNetworkCall("deallocate", err == nil)
	return err
}

func (c *Coordinator) resolveCount(ctx context.Context, count *int) (int, error) {
	if count != nil {
		return *count, nil
	}
	return c.counter.GetNetworkAllocationsNumber(ctx)
}

func missingAPI() error {
	return errors.NewError(errors.ErrCodeNetworkService, "no network allocation service configured").
		WithComponent("network")
}
