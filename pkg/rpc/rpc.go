package rpc

import (
	"context"
	"fmt"
	"net"

	json "github.com/goccy/go-json"
	"github.com/mod/kadnet/pkg/klog"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/mod/kadnet/pkg/rpcerr"
)

// DefaultBufferSize is the fixed per-datagram receive buffer, sized to
// stay inside a conservative MTU (spec.md §4.5, §6).
const DefaultBufferSize = 2000

// Rpc is the thin boundary over a bound UDP socket: it owns
// serialization and the receive loop, and hands typed Messages to its
// caller over a channel.
type Rpc struct {
	conn       net.PacketConn
	bufferSize int
}

// New binds a UDP socket at address and wraps it as an Rpc. Bind
// failure is fatal to node construction (spec.md §7).
func New(address string, bufferSize int) (*Rpc, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s: %v", rpcerr.ErrTransport, address, err)
	}
	return &Rpc{conn: conn, bufferSize: bufferSize}, nil
}

// LocalAddr returns the bound socket's address, e.g. after binding to
// port 0 for an OS-assigned ephemeral port.
func (r *Rpc) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Close releases the underlying socket.
func (r *Rpc) Close() error {
	return r.conn.Close()
}

// Receive reads datagrams in a loop until ctx is cancelled, deserializing
// each as a Message and forwarding it on tx. A datagram that fails to
// deserialize is logged and skipped; it never terminates the loop
// (spec.md §4.5: "the source panics; the spec requires recovery").
// Receive blocks the calling goroutine; callers spawn it as a task.
func (r *Rpc) Receive(ctx context.Context, tx chan<- Message) error {
	buf := make([]byte, r.bufferSize)

	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("%w: receive: %v", rpcerr.ErrTransport, err)
		}

		var msg Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			klog.Logger.WithError(err).Warn("rpc: dropping malformed datagram")
			continue
		}
		if err := msg.Validate(); err != nil {
			klog.Logger.WithError(err).Warn("rpc: dropping invalid message")
			continue
		}

		select {
		case tx <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// Send serializes msg and transmits it to dest.Address as a single
// datagram.
func (r *Rpc) Send(msg Message, dest peer.Info) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rpc: encode message: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", dest.Address)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", rpcerr.ErrTransport, dest.Address, err)
	}

	if _, err := r.conn.WriteTo(raw, addr); err != nil {
		return fmt.Errorf("%w: send to %s: %v", rpcerr.ErrTransport, dest.Address, err)
	}
	return nil
}
