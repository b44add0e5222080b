package routing

import (
	"testing"

	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localPeer(t *testing.T) peer.Info {
	t.Helper()
	return peer.Info{Id: id.MustRandom(), Address: "127.0.0.1:9000"}
}

func randomPeer(t *testing.T) peer.Info {
	t.Helper()
	return peer.Info{Id: id.MustRandom(), Address: "peer"}
}

func TestUpsertFindRoundTrip(t *testing.T) {
	tbl := New(localPeer(t), DefaultMaxBuckets)
	p := randomPeer(t)

	ok := tbl.Upsert(p)
	require.True(t, ok)

	found, ok := tbl.Find(p.Id)
	require.True(t, ok)
	assert.Equal(t, p, found)
}

func TestSoundnessNonLastBuckets(t *testing.T) {
	tbl := New(localPeer(t), DefaultMaxBuckets)

	// Force several splits by hammering the table with random peers.
	for i := 0; i < 400; i++ {
		tbl.Upsert(randomPeer(t))
	}

	for i := 0; i < tbl.BucketCount()-1; i++ {
		for _, p := range tbl.buckets[i].Entries() {
			assert.Equal(t, i, tbl.local.Id.Distance(p.Id),
				"peer in non-last bucket %d must be at exactly that distance", i)
		}
	}
}

func TestBucketCountNeverExceedsCeiling(t *testing.T) {
	const ceiling = 4
	tbl := New(localPeer(t), ceiling)

	for i := 0; i < 2000; i++ {
		tbl.Upsert(randomPeer(t))
		require.LessOrEqual(t, tbl.BucketCount(), ceiling)
	}
}

func TestClosestLengthAndMonotonicOrder(t *testing.T) {
	local := localPeer(t)
	tbl := New(local, DefaultMaxBuckets)

	for i := 0; i < 30; i++ {
		tbl.Upsert(randomPeer(t))
	}

	target := id.MustRandom()
	closest := tbl.Closest(target, 20)

	require.LessOrEqual(t, len(closest), 20)
	for i := 1; i < len(closest); i++ {
		assert.LessOrEqual(t, closest[i-1].Id.Distance(target), closest[i].Id.Distance(target))
	}
}

func TestClosestTruncationKeepsNearestPeer(t *testing.T) {
	local := localPeer(t)
	tbl := New(local, DefaultMaxBuckets)

	target := id.MustRandom()

	// Plant an exact-match peer for target first (a later Upsert could be
	// rejected once its bucket is full and no longer the catch-all), then
	// flood the table so the candidate pool comfortably exceeds n, and
	// confirm truncation still keeps it.
	nearest := peer.Info{Id: target, Address: "nearest"}
	require.True(t, tbl.Upsert(nearest))
	for i := 0; i < 200; i++ {
		tbl.Upsert(randomPeer(t))
	}

	const n = 5
	closest := tbl.Closest(target, n)
	require.LessOrEqual(t, len(closest), n)

	found := false
	for _, p := range closest {
		if p.Id.Equal(target) {
			found = true
		}
	}
	assert.True(t, found, "exact-match peer for target must survive truncation to n=%d", n)
}

func TestBucketSplitScenario(t *testing.T) {
	// S5: local id all-zero, insert 21 peers all at the same distance
	// from local (so they all target the catch-all bucket at the time
	// of insertion). Either they all get retained across a split, or
	// the 21st is rejected: splits cannot separate peers at one distance,
	// so once their bucket is full and no longer the last, Upsert says no.
	local := peer.Info{Id: id.Id{}, Address: "local"}
	tbl := New(local, DefaultMaxBuckets)

	// All peers share distance `d` from the all-zero local id: set a
	// single high bit (bit index d) and fill the later bytes with a fixed
	// pattern, so every peer gets the same Id and only the address differs.
	const d = 5
	makePeer := func() peer.Info {
		var x id.Id
		x[d/8] |= 1 << uint(7-d%8)
		for i := d/8 + 1; i < id.Size; i++ {
			x[i] = byte(i*37 + 11)
		}
		return peer.Info{Id: x, Address: "p"}
	}

	admitted := 0
	for i := 0; i < 21; i++ {
		p := makePeer()
		// distinguish peers sharing the same Id-prefix collision risk
		p.Address = p.Address + string(rune('a'+i))
		if tbl.Upsert(p) {
			admitted++
		}
	}

	if admitted == 21 {
		assert.Greater(t, tbl.BucketCount(), 1)
	} else {
		assert.Less(t, admitted, 21)
	}
}

func TestRemoveAbsentIsNotFatal(t *testing.T) {
	tbl := New(localPeer(t), DefaultMaxBuckets)
	_, ok := tbl.Remove(randomPeer(t))
	assert.False(t, ok)
}

func TestUpsertRefreshesExistingWithoutGrowth(t *testing.T) {
	tbl := New(localPeer(t), DefaultMaxBuckets)
	p := randomPeer(t)

	require.True(t, tbl.Upsert(p))
	require.True(t, tbl.Upsert(p))

	total := 0
	for _, b := range tbl.buckets {
		total += b.Size()
	}
	assert.Equal(t, 1, total)

	found, ok := tbl.Find(p.Id)
	require.True(t, ok)
	assert.Equal(t, p, found)
}
