// Package peer defines the address-stamped identity shared by the
// routing table, the RPC wire format, and the dispatcher.
package peer

import "github.com/mod/kadnet/pkg/id"

// Info is the pair (Id, transport address) carried as the source or
// destination of every message and stored as the content of routing
// table buckets. Equality is structural.
type Info struct {
	Id      id.Id  `json:"id"`
	Address string `json:"address"`
}

// Equal reports structural equality: same Id and same Address. A peer
// that changes address is, for upsert purposes, a different value.
func (a Info) Equal(b Info) bool {
	return a.Id == b.Id && a.Address == b.Address
}
