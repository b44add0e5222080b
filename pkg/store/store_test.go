package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertGet(t *testing.T) {
	s := New(time.Hour)
	s.Upsert("hello", "world")

	e, ok := s.Get("hello")
	require.True(t, ok)
	assert.Equal(t, "world", e.Value)
	assert.WithinDuration(t, time.Now(), e.InsertedAt, time.Second)
}

func TestGetAbsentKey(t *testing.T) {
	s := New(time.Hour)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestReupsertRefreshesAge(t *testing.T) {
	s := New(time.Hour)
	s.Upsert("k", "v1")
	first, _ := s.Get("k")

	time.Sleep(5 * time.Millisecond)
	s.Upsert("k", "v2")
	second, _ := s.Get("k")

	assert.Equal(t, "v2", second.Value)
	assert.True(t, second.InsertedAt.After(first.InsertedAt) || second.InsertedAt.Equal(first.InsertedAt))
}

func TestSweepRemovesOnlyStaleEntries(t *testing.T) {
	s := New(time.Minute)
	s.Upsert("stale", "v")
	s.Upsert("fresh", "v")

	// Manually age the "stale" entry past the TTL.
	s.mu.Lock()
	e := s.m["stale"]
	e.InsertedAt = time.Now().Add(-2 * time.Minute)
	s.m["stale"] = e
	s.mu.Unlock()

	removed := s.Sweep(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := s.Get("stale")
	assert.False(t, ok)
	_, ok = s.Get("fresh")
	assert.True(t, ok)
}

func TestSweepLeavesKeySetsConsistent(t *testing.T) {
	s := New(time.Nanosecond)
	for i := 0; i < 10; i++ {
		s.Upsert(string(rune('a'+i)), "v")
	}
	time.Sleep(time.Millisecond)
	removed := s.Sweep(time.Now())
	assert.Equal(t, 10, removed)
	assert.Equal(t, 0, s.Len())
}
