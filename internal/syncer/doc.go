// Package syncer reconciles the device's local record store with the remote
// store.
//
// ARCHITECTURE:
//
// One long-lived Engine per device owns every sync cycle. A cycle:
//  1. Pulls the roster and replaces the cache when its fingerprint changed
//  2. Pulls every remote scan record and merges it with the local log
//     (Merge: pending records win on ID collision, nothing local is lost)
//  3. Pushes the pending queue once and dequeues exactly the accepted IDs
//
// Scheduling:
// Run drives cycles from a single goroutine. The next wake-up is the poll
// interval (short while online, long while offline) or a backoff delay after
// a failure. Trigger requests an immediate cycle; requests coalesce into at
// most one queued rerun, so a trigger that arrives mid-cycle is never lost.
//
// Cycles never overlap: Run and SyncNow both hold the engine's run flag for
// their whole duration.
//
// Pusher:
// Push and NotifyCompletion send single records and completion events in the
// background right after a scan is stored. They never block the caller, and
// a failed push simply leaves the record queued for the next cycle.
package syncer
