// Package ssh provides an execution primitive that runs commands on a
// storage appliance over a pool of SSH connections.
//
// A Pool dials ssh_min_pool_conn connections when created and never holds
// more than ssh_max_pool_conn. Dials go through a circuit breaker, so an
// appliance that keeps refusing connections fails fast with CIRCUIT_OPEN
// instead of being redialed on every retry. Runner.Execute satisfies
// executor.ExecuteFunc.
package ssh
