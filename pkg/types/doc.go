/*
Package types defines the records exchanged between the share service and
share drivers.

Shares, snapshots, access rules, share servers and share networks are owned
by the caller. Drivers receive them by reference, act on the storage backend
and report success or failure; they never persist these records themselves.

	┌─────────────────────────────────────────────┐
	│          share service (caller)            │
	└─────────────────────────────────────────────┘
	                      │  types.Share, types.Snapshot, ...
	┌─────────────────────────────────────────────┐
	│            internal/share/driver           │
	└─────────────────────────────────────────────┘
	          │                │               │
	┌─────────┴───┐   ┌────────┴─────┐   ┌─────┴──────┐
	│  executor   │   │   network    │   │   stats    │
	└─────────────┘   └──────────────┘   └────────────┘

# Capability snapshot

ShareStats is what a backend reports about itself: name, vendor, version,
protocol and capacity. Capacity is either a size in GiB or Infinite, the
sentinel for backends that do not meter space. It serializes as the string
"infinite".

# Request context

Every driver operation takes a context.Context. The caller identity travels
inside it as a *RequestContext (see WithRequestContext). Request IDs are
random UUIDs prefixed with "req-".
*/
package types
