// Package profile persists accessor usage between runs. A Snapshot
// captures which descriptors were hot in one process lifetime; the
// Store accumulates snapshots across runs so tooling can decide which
// accessors deserve eager promotion next time.
package profile

import (
	"sort"
	"time"

	"github.com/chazu/mirror/accessor"
)

// SnapshotVersion is the current wire format version.
const SnapshotVersion = 1

// Entry records the lifetime usage of a single accessor.
type Entry struct {
	Key         string `cbor:"1,keyasint"`
	Kind        string `cbor:"2,keyasint"`
	Invocations uint64 `cbor:"3,keyasint,omitempty"`
	Promoted    bool   `cbor:"4,keyasint,omitempty"`
}

// Snapshot is one run's worth of accessor usage.
type Snapshot struct {
	Version   int     `cbor:"1,keyasint"`
	CreatedAt int64   `cbor:"2,keyasint"` // unix seconds
	Entries   []Entry `cbor:"3,keyasint,omitempty"`
}

// FromUsage builds a snapshot from factory usage records, stamped with
// the current time.
func FromUsage(records []accessor.UsageRecord) *Snapshot {
	s := &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: time.Now().Unix(),
		Entries:   make([]Entry, 0, len(records)),
	}
	for _, r := range records {
		s.Entries = append(s.Entries, Entry{
			Key:         r.Key,
			Kind:        r.Kind,
			Invocations: r.Invocations,
			Promoted:    r.Promoted,
		})
	}
	return s
}

// HotKeys returns the keys worth prewarming: entries that were promoted
// during the run, or that accumulated at least min invocations. Sorted.
func (s *Snapshot) HotKeys(min uint64) []string {
	var keys []string
	for _, e := range s.Entries {
		if e.Promoted || e.Invocations >= min {
			keys = append(keys, e.Key)
		}
	}
	sort.Strings(keys)
	return keys
}
