// Package lookup implements the iterative alpha-parallel node and value
// lookup that spec.md §9 leaves unspecified ("the outer control loop is
// not specified here"). It is a thin consumer of pkg/node's public
// surface only: Send, with seed peers supplied by the caller. No access
// to dispatcher internals, so it can be dropped or replaced without
// touching the core.
package lookup

import (
	"context"
	"sort"
	"sync"

	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/mod/kadnet/pkg/rpc"
)

// DefaultAlpha is the default lookup concurrency: how many peers are
// queried in parallel at each round.
const DefaultAlpha = 3

// sender is the subset of *node.Node this package depends on. Declared
// here rather than imported so pkg/lookup has no compile-time tie to
// pkg/node's concrete type, only its shape.
type sender interface {
	Send(ctx context.Context, payload rpc.RequestPayload, dest peer.Info) (rpc.ResponsePayload, bool)
}

// Result is the outcome of a FindValue lookup: either a value was
// found, or the search bottomed out with the closest peers it reached.
type Result struct {
	Value   string
	Found   bool
	Closest []peer.Info
}

type shortlistEntry struct {
	peer    peer.Info
	queried bool
}

// FindNode drives the iterative node lookup converging on target: each
// round sends FindNode to up to alpha not-yet-queried peers from the
// current shortlist and merges their replies in, stopping once a round
// adds no new peer or every peer has been queried. The shortlist is
// sorted by distance to target only at the end, for the result.
func FindNode(ctx context.Context, n sender, seeds []peer.Info, target id.Id, alpha, k int) []peer.Info {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if k <= 0 {
		k = 20
	}

	shortlist := newShortlist(seeds)

	for {
		batch := shortlist.nextUnqueried(alpha)
		if len(batch) == 0 {
			break
		}

		type reply struct {
			peers []peer.Info
		}
		replies := make([]reply, len(batch))

		var wg sync.WaitGroup
		for i, p := range batch {
			wg.Add(1)
			go func(i int, p peer.Info) {
				defer wg.Done()
				resp, ok := n.Send(ctx, rpc.RequestPayload{Kind: rpc.KindFindNode, FindNodeId: target}, p)
				if ok && resp.Kind == rpc.KindNodes {
					replies[i] = reply{peers: resp.Closest}
				}
			}(i, p)
		}
		wg.Wait()

		shortlist.markQueried(batch)
		progressed := false
		for _, r := range replies {
			if shortlist.merge(r.peers, target, k) {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return shortlist.closest(target, k)
}

// FindValue drives the same iterative search but stops early the moment
// any queried peer returns a stored value, matching the dispatcher's
// own FindValue-falls-back-to-FindNode contract (spec.md §4.6).
func FindValue(ctx context.Context, n sender, seeds []peer.Info, key string, target id.Id, alpha, k int) Result {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if k <= 0 {
		k = 20
	}

	shortlist := newShortlist(seeds)

	for {
		batch := shortlist.nextUnqueried(alpha)
		if len(batch) == 0 {
			break
		}

		type reply struct {
			value string
			found bool
			peers []peer.Info
		}
		replies := make([]reply, len(batch))

		var wg sync.WaitGroup
		for i, p := range batch {
			wg.Add(1)
			go func(i int, p peer.Info) {
				defer wg.Done()
				resp, ok := n.Send(ctx, rpc.RequestPayload{Kind: rpc.KindFindValue, FindValueKey: key}, p)
				if !ok {
					return
				}
				switch resp.Kind {
				case rpc.KindValue:
					replies[i] = reply{value: resp.Value, found: true}
				case rpc.KindValueMissing:
					replies[i] = reply{peers: resp.Closest}
				}
			}(i, p)
		}
		wg.Wait()

		shortlist.markQueried(batch)
		for _, r := range replies {
			if r.found {
				return Result{Value: r.value, Found: true}
			}
		}

		progressed := false
		for _, r := range replies {
			if shortlist.merge(r.peers, target, k) {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return Result{Closest: shortlist.closest(target, k)}
}

// shortlist is the lookup's working set: every candidate peer seen so
// far, each marked queried or not.
type shortlist struct {
	mu      sync.Mutex
	entries map[[2]string]*shortlistEntry
}

func newShortlist(seeds []peer.Info) *shortlist {
	s := &shortlist{entries: make(map[[2]string]*shortlistEntry)}
	for _, p := range seeds {
		s.entries[key(p)] = &shortlistEntry{peer: p}
	}
	return s
}

func key(p peer.Info) [2]string {
	return [2]string{p.Id.Hex(), p.Address}
}

func (s *shortlist) nextUnqueried(n int) []peer.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*shortlistEntry
	for _, e := range s.entries {
		if !e.queried {
			all = append(all, e)
		}
	}
	if len(all) > n {
		all = all[:n]
	}
	out := make([]peer.Info, len(all))
	for i, e := range all {
		out[i] = e.peer
	}
	return out
}

func (s *shortlist) markQueried(batch []peer.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch {
		if e, ok := s.entries[key(p)]; ok {
			e.queried = true
		}
	}
}

// merge adds any peers not already present and reports whether it grew
// the shortlist (the lookup's progress signal).
func (s *shortlist) merge(peers []peer.Info, target id.Id, k int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	grew := false
	for _, p := range peers {
		kk := key(p)
		if _, ok := s.entries[kk]; ok {
			continue
		}
		s.entries[kk] = &shortlistEntry{peer: p}
		grew = true
	}
	return grew
}

// closest returns up to k entries ordered by ascending Distance() to
// target, matching pkg/routing.Table.Closest's own ordering contract
// (literal-nearest peer last).
func (s *shortlist) closest(target id.Id, k int) []peer.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]peer.Info, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.peer)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Id.Distance(target) < out[j].Id.Distance(target)
	})
	// The genuinely closest peers are the tail of this ascending sort,
	// not the head - keep the last k, not the first k.
	if len(out) > k {
		out = out[len(out)-k:]
	}
	return out
}
