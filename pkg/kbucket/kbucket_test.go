package kbucket

import (
	"testing"

	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPeer(t *testing.T, addr string) peer.Info {
	t.Helper()
	x, err := id.Random()
	require.NoError(t, err)
	return peer.Info{Id: x, Address: addr}
}

func TestUpsertDeduplicates(t *testing.T) {
	b := New()
	a := mustPeer(t, "127.0.0.1:1")
	b.Upsert(a)
	b.Upsert(a)
	b.Upsert(a)
	assert.Equal(t, 1, b.Size())
}

func TestLRUOrderAfterRefresh(t *testing.T) {
	b := New()
	a := mustPeer(t, "127.0.0.1:1")
	c := mustPeer(t, "127.0.0.1:2")

	b.Upsert(a)
	b.Upsert(c)
	b.Upsert(a)

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, c, entries[0])
	assert.Equal(t, a, entries[1])
}

func TestCapacityEvictsHead(t *testing.T) {
	b := New()
	var first peer.Info
	for i := 0; i < Capacity; i++ {
		p := mustPeer(t, "peer")
		if i == 0 {
			first = p
		}
		b.Upsert(p)
	}
	require.Equal(t, Capacity, b.Size())

	extra := mustPeer(t, "overflow")
	b.Upsert(extra)

	assert.Equal(t, Capacity, b.Size())
	assert.False(t, b.Contains(first))
	entries := b.Entries()
	assert.Equal(t, extra, entries[len(entries)-1])
}

func TestLRURefreshScenario(t *testing.T) {
	// S6: fill with p0..p19 in order, then upsert p0 again.
	b := New()
	peers := make([]peer.Info, Capacity)
	for i := range peers {
		peers[i] = mustPeer(t, "p")
		b.Upsert(peers[i])
	}

	b.Upsert(peers[0])

	entries := b.Entries()
	require.Len(t, entries, Capacity)
	assert.Equal(t, peers[0], entries[len(entries)-1])
	for i := 1; i < Capacity; i++ {
		assert.Equal(t, peers[i], entries[i-1])
	}
}

func TestSplitPartitionsByDistance(t *testing.T) {
	local := id.Id{}
	b := New()

	// Construct peers with a known distance: first bit set (distance 0)
	// vs first bit clear (distance > 0, merged into "other").
	var withBitSet id.Id
	withBitSet[0] = 0x80
	pDist0 := peer.Info{Id: withBitSet, Address: "d0"}

	var withSecondBitSet id.Id
	withSecondBitSet[0] = 0x40
	pDist1 := peer.Info{Id: withSecondBitSet, Address: "d1"}

	b.Upsert(pDist0)
	b.Upsert(pDist1)

	moved := b.Split(local, 0)

	assert.Equal(t, 1, b.Size())
	assert.True(t, b.Contains(pDist0))
	assert.Equal(t, 1, moved.Size())
	assert.True(t, moved.Contains(pDist1))
}

func TestRemoveAbsenceIsNotFatal(t *testing.T) {
	b := New()
	_, ok := b.Remove(mustPeer(t, "ghost"))
	assert.False(t, ok)
}

func TestFind(t *testing.T) {
	b := New()
	a := mustPeer(t, "127.0.0.1:1")
	b.Upsert(a)

	found, ok := b.Find(a.Id)
	require.True(t, ok)
	assert.Equal(t, a, found)

	_, ok = b.Find(id.MustRandom())
	assert.False(t, ok)
}
