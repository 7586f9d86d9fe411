package syncer

import (
	"sort"

	"github.com/roach88/yatra/internal/model"
)

// Merge combines the local log, the pending queue and the remote record set
// into the new local log.
//
// Rules, by record ID:
//   - a pending record wins and stays unsynced until a push confirms it
//   - otherwise the remote copy wins and is marked synced
//   - local records the remote does not know are kept
//
// The result is ordered newest first, ties broken by ID descending. Merge is
// pure and idempotent: merging its output again with the same pending and
// remote sets returns the same log.
func Merge(local, pending, remote []model.ScanRecord) []model.ScanRecord {
	byID := make(map[string]model.ScanRecord, len(local)+len(remote)+len(pending))
	for _, r := range local {
		byID[r.ID] = r
	}
	for _, r := range remote {
		r.Synced = true
		byID[r.ID] = r
	}
	for _, r := range pending {
		r.Synced = false
		byID[r.ID] = r
	}

	out := make([]model.ScanRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders records by timestamp descending, then ID descending.
func SortNewestFirst(records []model.ScanRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ScannedAt.Equal(b.ScannedAt) {
			return a.ScannedAt.After(b.ScannedAt)
		}
		return a.ID > b.ID
	})
}
