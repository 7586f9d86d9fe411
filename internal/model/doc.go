// Package model defines the records shared by the local store, the sync
// engine and the remote adapter.
//
// Participants are owned by the remote store and are only ever cached
// locally. ScanRecords are created exactly once on a device, identified by a
// client-generated UUIDv7, and only ever change by flipping Synced from false
// to true.
package model
