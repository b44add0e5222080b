// Package klog wraps logrus with the node-id/peer-address fields this
// module's components stamp on every log line, following the
// logrus.WithFields(logrus.Fields{...}) idiom used throughout the
// retrieval pack's peer-to-peer example (opd-ai/toxcore).
package klog

import (
	"github.com/google/uuid"
	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/sirupsen/logrus"
)

// RunId is a process-scoped identifier (not a protocol Id) stamped on
// every log line written through ForNode, so that log output from
// concurrently-run local nodes in the same process (as cmd/kad spawns)
// can be told apart. Lines logged directly on Logger do not carry it.
var RunId = uuid.NewString()

// Logger is the package-level logrus instance every component logs
// through. Callers may reconfigure its level/formatter at process start.
var Logger = logrus.New()

// ForNode returns a logger entry pre-stamped with the local node's id
// and the ambient run id.
func ForNode(local id.Id) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"run":  RunId,
		"node": local.Hex(),
	})
}

// WithPeer adds the remote peer's id and address to an existing entry.
func WithPeer(entry *logrus.Entry, p peer.Info) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"peer":      p.Id.Hex(),
		"peer_addr": p.Address,
	})
}
