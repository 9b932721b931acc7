package blobcore

// isAdmissibleLocked reports whether peer currently has no active transfer
// in either direction and is reachable in the overlay's peer directory
// (spec §4.2 admission test). Must be called with c.mu held.
func (c *Core) isAdmissibleLocked(peer PeerID) bool {
	if _, busy := c.outgoing[peer]; busy {
		return false
	}
	if _, busy := c.incoming[peer]; busy {
		return false
	}
	return c.directory.IsReachable(peer)
}

func (c *Core) isFinishedOutgoingLocked(peer PeerID, id string) bool {
	ids := c.finishedOutgoing[peer]
	return ids != nil && ids[id]
}

func (c *Core) isFinishedIncomingLocked(peer PeerID, id string) bool {
	ids := c.finishedIncoming[peer]
	return ids != nil && ids[id]
}

func (c *Core) markFinishedOutgoingLocked(peer PeerID, id string) {
	if c.finishedOutgoing[peer] == nil {
		c.finishedOutgoing[peer] = make(map[string]bool)
	}
	c.finishedOutgoing[peer][id] = true
}

func (c *Core) markFinishedIncomingLocked(peer PeerID, id string) {
	if c.finishedIncoming[peer] == nil {
		c.finishedIncoming[peer] = make(map[string]bool)
	}
	c.finishedIncoming[peer][id] = true
}

func (c *Core) isScheduledLocked(peer PeerID, id string) bool {
	for _, s := range c.scheduled[peer] {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (c *Core) enqueueScheduledLocked(peer PeerID, s ScheduledTransfer) {
	c.scheduled[peer] = append(c.scheduled[peer], s)
}

// terminateLocked sets released, drops buffers, and removes the transfer
// from whichever map holds it (spec §3 Lifecycle). Idempotent, and it is
// the only place a Transfer is destroyed. Must be called with c.mu held.
func (c *Core) terminateLocked(t *Transfer) {
	if t.Released {
		return
	}
	t.release()
	switch t.Direction {
	case DirectionOutgoing:
		if cur, ok := c.outgoing[t.Peer]; ok && cur == t {
			delete(c.outgoing, t.Peer)
		}
	case DirectionIncoming:
		if cur, ok := c.incoming[t.Peer]; ok && cur == t {
			delete(c.incoming, t.Peer)
		}
	}
}

// PumpScheduled iterates every peer with a non-empty queue and no active
// transfer in either direction; for each reachable one it pops a single queued item
// and starts it (spec §4.4). Invoked on the fixed scheduler-tick interval
// and whenever an outgoing transfer completes or errors. FIFO order is
// preserved within a peer's queue; no ordering is guaranteed across peers.
func (c *Core) PumpScheduled() {
	var ob outbox
	c.mu.Lock()
	for peer, queue := range c.scheduled {
		if len(queue) == 0 {
			continue
		}
		if _, busy := c.outgoing[peer]; busy {
			continue
		}
		if _, busy := c.incoming[peer]; busy {
			continue
		}
		if !c.directory.IsReachable(peer) {
			continue
		}
		next := queue[0]
		c.scheduled[peer] = queue[1:]
		c.startOutgoingTransferLocked(&ob, peer, next.Info, next.ID, next.Data, next.Nonce)
	}
	c.mu.Unlock()
	ob.run()
}
