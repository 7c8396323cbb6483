package network

import (
	"context"
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/types"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) AllocateNetwork(ctx context.Context, server types.ShareServer, shareNetwork types.ShareNetwork, opts AllocateOptions) error {
	return m.Called(ctx, server, shareNetwork, opts).Error(0)
}

func (m *mockAPI) DeallocateNetwork(ctx context.Context, serverID string) error {
	return m.Called(ctx, serverID).Error(0)
}

type fixedCount struct {
	n     int
	err   error
	calls int
}

func (f *fixedCount) GetNetworkAllocationsNumber(ctx context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

var (
	server       = types.ShareServer{ID: "srv-1", Host: "host@generic"}
	shareNetwork = types.ShareNetwork{ID: "net-1", CIDR: "10.0.0.0/24"}
)

func intPtr(n int) *int { return &n }

func TestAllocate_ZeroAllocationsNeverCallsService(t *testing.T) {
	api := &mockAPI{}
	c := NewCoordinator(api, &fixedCount{n: 0}, "generic1", nil, nil)

	require.NoError(t, c.Allocate(context.Background(), server, shareNetwork, nil, nil))
	require.NoError(t, c.Deallocate(context.Background(), server.ID))

	api.AssertNotCalled(t, "AllocateNetwork", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "DeallocateNetwork", mock.Anything, mock.Anything)
}

func TestAllocate_CountFromBackend(t *testing.T) {
	api := &mockAPI{}
	api.On("AllocateNetwork", mock.Anything, server, shareNetwork, AllocateOptions{Count: 3}).Return(nil).Once()

	c := NewCoordinator(api, &fixedCount{n: 3}, "generic1", nil, nil)
	require.NoError(t, c.Allocate(context.Background(), server, shareNetwork, nil, nil))

	api.AssertExpectations(t)
}

func TestAllocate_ExplicitCount(t *testing.T) {
	tests := []struct {
		name      string
		count     *int
		wantCall  bool
		wantCount int
	}{
		{"explicit count overrides backend", intPtr(5), true, 5},
		{"explicit zero skips service", intPtr(0), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			counter := &fixedCount{n: 3}
			if tt.wantCall {
				api.On("AllocateNetwork", mock.Anything, server, shareNetwork, mock.MatchedBy(func(o AllocateOptions) bool {
					return o.Count == tt.wantCount
				})).Return(nil).Once()
			}

			c := NewCoordinator(api, counter, "generic1", nil, nil)
			require.NoError(t, c.Allocate(context.Background(), server, shareNetwork, tt.count, nil))

			api.AssertExpectations(t)
			if !tt.wantCall {
				api.AssertNotCalled(t, "AllocateNetwork", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			assert.Equal(t, 0, counter.calls, "explicit count must not consult the backend")
		})
	}
}

func TestAllocate_ForwardsExtra(t *testing.T) {
	api := &mockAPI{}
	extra := map[string]interface{}{"device_owner": "share"}
	api.On("AllocateNetwork", mock.Anything, server, shareNetwork, AllocateOptions{Count: 2, Extra: extra}).Return(nil).Once()

	c := NewCoordinator(api, &fixedCount{n: 2}, "generic1", nil, nil)
	require.NoError(t, c.Allocate(context.Background(), server, shareNetwork, nil, extra))
	api.AssertExpectations(t)
}

func TestAllocate_ServiceErrorPassesThrough(t *testing.T) {
	boom := stderr.New("no free ports")
	api := &mockAPI{}
	api.On("AllocateNetwork", mock.Anything, server, shareNetwork, mock.Anything).Return(boom).Once()
	api.On("DeallocateNetwork", mock.Anything, server.ID).Return(boom).Once()

	c := NewCoordinator(api, &fixedCount{n: 1}, "generic1", nil, nil)

	assert.Same(t, boom, c.Allocate(context.Background(), server, shareNetwork, nil, nil))
	assert.Same(t, boom, c.Deallocate(context.Background(), server.ID))
	api.AssertExpectations(t)
}

func TestDeallocate_CallsServiceWhenAllocationsUsed(t *testing.T) {
	api := &mockAPI{}
	api.On("DeallocateNetwork", mock.Anything, "srv-9").Return(nil).Once()

	c := NewCoordinator(api, &fixedCount{n: 1}, "generic1", nil, nil)
	require.NoError(t, c.Deallocate(context.Background(), "srv-9"))
	api.AssertExpectations(t)
}

func TestAllocate_CounterError(t *testing.T) {
	notImpl := errors.NotImplemented("get_network_allocations_number")
	api := &mockAPI{}
	c := NewCoordinator(api, &fixedCount{err: notImpl}, "generic1", nil, nil)

	err := c.Allocate(context.Background(), server, shareNetwork, nil, nil)
	assert.True(t, errors.IsNotImplemented(err))
	api.AssertNotCalled(t, "AllocateNetwork", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocate_MissingService(t *testing.T) {
	c := NewCoordinator(nil, &fixedCount{n: 1}, "generic1", nil, nil)

	err := c.Allocate(context.Background(), server, shareNetwork, nil, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNetworkService))

	c = NewCoordinator(nil, &fixedCount{n: 0}, "generic1", nil, nil)
	assert.NoError(t, c.Allocate(context.Background(), server, shareNetwork, nil, nil))
}

func TestConfigGroup(t *testing.T) {
	c := NewCoordinator(nil, &fixedCount{}, "net1", nil, nil)
	assert.Equal(t, "net1", c.ConfigGroup())
}
