// Package overlaywire is a reference binding of blobcore's endpoint.send /
// community.get_peers contract (spec.md §6) onto a real network: ICE
// candidate pairs for NAT-crossing datagram delivery, exchanged over a
// WebSocket signaling channel, with per-peer outbound rate limiting and
// pooled receive buffers. It is a demonstration overlay, not the NAT
// traversal / signing / discovery stack spec.md §1 explicitly places out
// of the core's scope.
package overlaywire

import (
	"sync"

	"github.com/sheerbytes/blocksend/internal/blobcore"
)

// Directory tracks which peers currently have an established ICE
// connection, playing the role the teacher's peers.Hub plays for a
// session's roster — narrowed here to the single fact blobcore's
// admission test needs: is this peer reachable right now.
type Directory struct {
	mu        sync.RWMutex
	reachable map[blobcore.PeerID]bool
}

// NewDirectory returns an empty, all-unreachable directory.
func NewDirectory() *Directory {
	return &Directory{reachable: make(map[blobcore.PeerID]bool)}
}

// IsReachable implements blobcore.Directory.
func (d *Directory) IsReachable(peer blobcore.PeerID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reachable[peer]
}

// MarkReachable records peer as connected or disconnected. The overlay
// calls this when an ICE connection pair completes or is torn down.
func (d *Directory) MarkReachable(peer blobcore.PeerID, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ok {
		d.reachable[peer] = true
	} else {
		delete(d.reachable, peer)
	}
}

// Peers returns the currently reachable peer set.
func (d *Directory) Peers() []blobcore.PeerID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]blobcore.PeerID, 0, len(d.reachable))
	for p := range d.reachable {
		out = append(out, p)
	}
	return out
}
