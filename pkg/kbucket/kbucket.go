// Package kbucket implements the bounded LRU peer list that is the leaf
// structure of the routing table.
package kbucket

import (
	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
)

// Capacity is k, the maximum number of peers a bucket holds.
const Capacity = 20

// KBucket is an ordered sequence of peer.Info, index 0 being the least
// recently refreshed and the last index the most recently refreshed.
// It never holds a duplicate peer.Info (by Equal) and never exceeds
// Capacity entries.
type KBucket struct {
	entries []peer.Info
}

// New returns an empty KBucket.
func New() *KBucket {
	return &KBucket{entries: make([]peer.Info, 0, Capacity)}
}

// Size returns the number of peers currently held.
func (b *KBucket) Size() int {
	return len(b.entries)
}

// Contains reports whether n is already present.
func (b *KBucket) Contains(n peer.Info) bool {
	return b.indexOf(n) >= 0
}

// Find returns the first entry whose Id equals target.
func (b *KBucket) Find(target id.Id) (peer.Info, bool) {
	for _, e := range b.entries {
		if e.Id == target {
			return e, true
		}
	}
	return peer.Info{}, false
}

// Upsert moves n to the tail if already present, refreshing it without
// changing the bucket's size; otherwise it appends n and, if that pushes
// the bucket past Capacity, evicts the head (the least recently
// refreshed entry).
func (b *KBucket) Upsert(n peer.Info) {
	if i := b.indexOf(n); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
	}
	b.entries = append(b.entries, n)
	if len(b.entries) > Capacity {
		b.entries = b.entries[1:]
	}
}

// Remove deletes n if present and returns it.
func (b *KBucket) Remove(n peer.Info) (peer.Info, bool) {
	i := b.indexOf(n)
	if i < 0 {
		return peer.Info{}, false
	}
	removed := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return removed, true
}

// Entries returns a copy of the bucket contents in LRU order (oldest
// first). Callers must not rely on the returned slice aliasing bucket
// state.
func (b *KBucket) Entries() []peer.Info {
	out := make([]peer.Info, len(b.entries))
	copy(out, b.entries)
	return out
}

// Split partitions the bucket's contents in place by distance from
// localId: entries whose distance to localId equals d remain in b;
// everything else moves, order preserved, into the returned bucket.
func (b *KBucket) Split(localId id.Id, d int) *KBucket {
	kept := b.entries[:0:0]
	moved := make([]peer.Info, 0, len(b.entries))
	for _, e := range b.entries {
		if localId.Distance(e.Id) == d {
			kept = append(kept, e)
		} else {
			moved = append(moved, e)
		}
	}
	b.entries = kept
	return &KBucket{entries: moved}
}

func (b *KBucket) indexOf(n peer.Info) int {
	for i, e := range b.entries {
		if e.Equal(n) {
			return i
		}
	}
	return -1
}
