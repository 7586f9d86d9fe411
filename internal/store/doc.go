// Package store provides SQLite-backed durable storage for one device.
//
// Namespaces:
//   - roster: read cache of the remote participant list
//   - scan_log: every scan this device knows about
//   - pending_queue: scans not yet accepted by the remote store
//   - meta: scalar settings (device_id, last_sync_at, selected_checkpoint, ...)
//
// The store has no business rules and no network access. Multi-step
// mutations run inside Update so that, for example, a scan is never in the
// log without also being in the pending queue.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: a committed scan survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - one open connection: the device is a single writer
package store
