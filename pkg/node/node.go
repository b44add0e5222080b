// Package node wires the transport, routing table, and value store
// together into the dispatcher described in spec.md §4.6: a long-lived
// loop that answers inbound requests, correlates inbound responses with
// outstanding Sends, and sweeps stale store entries on a timer.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/mod/kadnet/pkg/config"
	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/klog"
	"github.com/mod/kadnet/pkg/lookup"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/mod/kadnet/pkg/routing"
	"github.com/mod/kadnet/pkg/rpc"
	"github.com/mod/kadnet/pkg/rpcerr"
	"github.com/mod/kadnet/pkg/store"
	"golang.org/x/sync/errgroup"
)

// pending is one outstanding Send: the channel its caller is blocked
// reading from, fulfilled exactly once by the dispatch loop.
type pending struct {
	done chan rpc.ResponsePayload
}

// Node is a single Kademlia participant: a bound socket, a routing
// table, a local value store, and the bookkeeping that correlates sent
// requests with their eventual responses.
type Node struct {
	cfg config.Config
	rpc *rpc.Rpc

	table *routing.Table
	store *store.Store

	mu      sync.Mutex
	waiting map[id.Id]pending
}

// New binds a socket at cfg.Address, generates a fresh local id, and
// returns an unstarted Node. Bind failure is fatal (spec.md §7).
func New(cfg config.Config) (*Node, error) {
	transport, err := rpc.New(cfg.Address, cfg.DatagramBufferSize)
	if err != nil {
		return nil, err
	}

	local := peer.Info{Id: id.MustRandom(), Address: transport.LocalAddr().String()}

	return &Node{
		cfg:     cfg,
		rpc:     transport,
		table:   routing.New(local, cfg.MaxBuckets),
		store:   store.New(cfg.StoreTTL),
		waiting: make(map[id.Id]pending),
	}, nil
}

// Local returns the node's own identity.
func (n *Node) Local() peer.Info {
	return n.table.Local()
}

// Table exposes the routing table for read access (e.g. tests checking
// which peers a node has learned).
func (n *Node) Table() *routing.Table {
	return n.table
}

// Close releases the underlying socket.
func (n *Node) Close() error {
	return n.rpc.Close()
}

// Start launches the receive loop, dispatch loop, and TTL sweeper as
// sibling tasks under an errgroup: if any one exits, the others are
// cancelled via ctx (golang.org/x/sync/errgroup). Start blocks until
// ctx is cancelled or a task errors.
func (n *Node) Start(ctx context.Context) error {
	inbound := make(chan rpc.Message, n.cfg.ReceiveChannelCapacity)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.rpc.Receive(ctx, inbound)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg := <-inbound:
				n.dispatch(msg)
			}
		}
	})

	g.Go(func() error {
		interval := n.cfg.SweepInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if removed := n.store.Sweep(now); removed > 0 {
					klog.ForNode(n.local().Id).WithField("removed", removed).Debug("node: swept stale entries")
				}
			}
		}
	})

	return g.Wait()
}

func (n *Node) local() peer.Info {
	return n.table.Local()
}

// dispatch handles one inbound message: refresh the sender in the
// routing table first (spec.md §4.6: every message, request or
// response, refreshes its source), then branch on request vs response.
func (n *Node) dispatch(msg rpc.Message) {
	switch {
	case msg.IsRequest():
		req := msg.Request
		n.table.Upsert(req.Source)
		n.handleRequest(*req)
	case msg.IsResponse():
		resp := msg.Response
		n.table.Upsert(resp.Source)
		n.handleResponse(*resp)
	}
}

func (n *Node) handleRequest(req rpc.Request) {
	logger := klog.WithPeer(klog.ForNode(n.local().Id), req.Source)

	var payload rpc.ResponsePayload
	switch req.Payload.Kind {
	case rpc.KindPing:
		payload = rpc.ResponsePayload{Kind: rpc.KindPong}

	case rpc.KindStore:
		n.store.Upsert(req.Payload.StoreKey, req.Payload.StoreValue)
		payload = rpc.ResponsePayload{Kind: rpc.KindPong}

	case rpc.KindFindNode:
		payload = rpc.ResponsePayload{
			Kind:    rpc.KindNodes,
			Closest: n.table.Closest(req.Payload.FindNodeId, n.cfg.BucketCapacity),
		}

	case rpc.KindFindValue:
		if entry, ok := n.store.Get(req.Payload.FindValueKey); ok {
			payload = rpc.ResponsePayload{Kind: rpc.KindValue, Value: entry.Value}
		} else {
			target := keyToId(req.Payload.FindValueKey)
			payload = rpc.ResponsePayload{
				Kind:    rpc.KindValueMissing,
				Closest: n.table.Closest(target, n.cfg.BucketCapacity),
			}
		}

	default:
		logger.WithField("kind", req.Payload.Kind).Warn("node: unrecognized request kind")
		return
	}

	resp := rpc.NewResponseMessage(rpc.Response{
		Id:        id.MustRandom(),
		Source:    n.local(),
		RequestId: req.Id,
		Payload:   payload,
	})
	if err := n.rpc.Send(resp, req.Source); err != nil {
		logger.WithError(err).Warn("node: failed to send response")
	}
}

func (n *Node) handleResponse(resp rpc.Response) {
	n.mu.Lock()
	p, ok := n.waiting[resp.RequestId]
	if ok {
		delete(n.waiting, resp.RequestId)
	}
	n.mu.Unlock()

	if !ok {
		klog.WithPeer(klog.ForNode(n.local().Id), resp.Source).
			WithError(rpcerr.ErrCorrelationMiss).
			Debug("node: dropping unmatched response")
		return
	}

	select {
	case p.done <- resp.Payload:
	default:
		// Send's wait already gave up (timeout raced the response);
		// the channel is buffered below so this branch is unreachable
		// in practice, but dropping rather than blocking keeps
		// handleResponse non-blocking regardless.
	}
}

// Send transmits payload to dest as a fresh request, registers a
// pending entry keyed by the request's own Id, and blocks until either
// a correlated response arrives or cfg.ResponseTimeout elapses. The
// second return value is false on timeout (spec.md §7: ErrTimeout is
// reported as absence, never a panic).
func (n *Node) Send(ctx context.Context, payload rpc.RequestPayload, dest peer.Info) (rpc.ResponsePayload, bool) {
	reqId := id.MustRandom()
	done := make(chan rpc.ResponsePayload, 1)

	n.mu.Lock()
	n.waiting[reqId] = pending{done: done}
	n.mu.Unlock()

	cleanup := func() {
		n.mu.Lock()
		delete(n.waiting, reqId)
		n.mu.Unlock()
	}

	req := rpc.NewRequestMessage(rpc.Request{
		Id:      reqId,
		Source:  n.local(),
		Payload: payload,
	})
	if err := n.rpc.Send(req, dest); err != nil {
		cleanup()
		klog.WithPeer(klog.ForNode(n.local().Id), dest).WithError(err).Warn("node: send failed")
		return rpc.ResponsePayload{}, false
	}

	timeout := n.cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-done:
		return resp, true
	case <-timer.C:
		cleanup()
		return rpc.ResponsePayload{}, false
	case <-ctx.Done():
		cleanup()
		return rpc.ResponsePayload{}, false
	}
}

// FindNode performs the iterative node lookup (pkg/lookup) converging
// on target, seeded from this node's own routing table.
func (n *Node) FindNode(ctx context.Context, target id.Id) []peer.Info {
	seeds := n.table.Closest(target, n.cfg.BucketCapacity)
	return lookup.FindNode(ctx, n, seeds, target, n.cfg.Alpha, n.cfg.BucketCapacity)
}

// FindValue performs the iterative value lookup for key, falling back
// to the closest nodes reached if no peer holds the value (spec.md
// §4.6, extended to the iterative case by SPEC_FULL.md §5).
func (n *Node) FindValue(ctx context.Context, key string) lookup.Result {
	target := keyToId(key)
	seeds := n.table.Closest(target, n.cfg.BucketCapacity)
	return lookup.FindValue(ctx, n, seeds, key, target, n.cfg.Alpha, n.cfg.BucketCapacity)
}

// keyToId derives a lookup target from a store key by feeding it
// through the same distance space node ids live in, so FindValue's
// closest-nodes fallback points a caller usefully closer to whoever
// might actually hold the key. Grounded on the protocol's own id
// package rather than inventing a second hash.
func keyToId(key string) id.Id {
	var out id.Id
	digest := []byte(key)
	for i := range out {
		if i < len(digest) {
			out[i] = digest[i]
		}
	}
	if len(digest) > id.Size {
		// Fold any remaining bytes in so keys longer than 20 bytes
		// still influence every byte of the derived id.
		for i, b := range digest[id.Size:] {
			out[i%id.Size] ^= b
		}
	}
	return out
}
