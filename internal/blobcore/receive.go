package blobcore

import (
	"github.com/sheerbytes/blocksend/internal/progress"
	"github.com/sheerbytes/blocksend/pkg/wire"
)

// onWriteRequestLocked handles an inbound write-request (spec §4.3). A
// request for an id already active or already finished-incoming for this
// peer is silently ignored. Sender-caused faults (non-positive size,
// oversized, peer busy) are reported back to the sender as an error
// packet and fired locally, without installing a transfer. A second
// concurrent write-request from a peer with an active incoming transfer
// whose nonce happens to collide with it is reported distinctly, since
// the generic busy rejection would otherwise hide the coincidence.
func (c *Core) onWriteRequestLocked(ob *outbox, peer PeerID, wr wire.WriteRequest) {
	if cur, ok := c.incoming[peer]; ok && cur.ID == wr.ID {
		return
	}
	if c.isFinishedIncomingLocked(peer, wr.ID) {
		return
	}

	reject := func(kind Kind, message string) {
		id, nonce := wr.ID, wr.Nonce
		exc := newException(kind, id, nonce, message)
		c.logger.Warn("write-request rejected", "peer", peer, "id", id, "kind", kind, "reason", message)
		ob.add(func() {
			payload, err := wire.Encode(wire.KindError, wire.Error{Message: message, Info: string(kind)})
			if err == nil {
				c.endpoint.Send(peer, wire.KindError, payload)
			}
			c.callbacks.error(peer, exc)
		})
	}

	if wr.DataSize <= 0 {
		reject(KindValue, "write-request advertises non-positive data size")
		return
	}
	if wr.DataSize > c.opts.BinarySizeLimit {
		reject(KindSize, "write-request exceeds binary size limit")
		return
	}
	if cur, busy := c.incoming[peer]; busy {
		if cur.Nonce == wr.Nonce {
			reject(KindNonceCollision, "write-request nonce collides with this peer's active incoming transfer")
			return
		}
		reject(KindPeerBusy, "peer already has an active incoming transfer")
		return
	}
	if _, busy := c.outgoing[peer]; busy {
		reject(KindPeerBusy, "peer already has an active outgoing transfer")
		return
	}

	now := c.now()
	t := &Transfer{
		Direction:   DirectionIncoming,
		Peer:        peer,
		ID:          wr.ID,
		Info:        wr.Info,
		Nonce:       wr.Nonce,
		BlockCount:  wr.BlockCount,
		BlockNumber: -1,
		DataSize:    wr.DataSize,
		WindowSize:  c.opts.WindowSizeInBlocks,
		Data:        make([]byte, 0, wr.DataSize),
		Attempt:     0,
		Updated:     now,
		meter:       progress.NewMeterWithNow(c.now),
	}
	t.meter.Start(wr.DataSize)
	c.incoming[peer] = t
	c.sendAcknowledgementLocked(t, ob)
	c.scheduleTerminateTimerLocked(t, now)
	c.scheduleAckRetransmitTimerLocked(t, now)
	c.logger.Debug("incoming transfer admitted", "peer", peer, "id", wr.ID, "block_count", wr.BlockCount)
}

// onDataLocked handles one inbound data block (spec §4.3). Strict
// in-order delivery is required: a block arriving out of sequence, or
// carrying the wrong nonce, is silently ignored — the acknowledgement-
// retransmit loop, not buffering, is what recovers from loss or
// reordering (spec §9 Open Question).
func (c *Core) onDataLocked(ob *outbox, peer PeerID, d wire.Data) {
	t, ok := c.incoming[peer]
	if !ok {
		return
	}
	if d.BlockNumber != t.BlockNumber+1 {
		return
	}
	if d.Nonce != t.Nonce {
		return
	}

	t.BlockNumber = d.BlockNumber
	t.meter.Add(len(d.Data))

	if t.BlockNumber == 0 {
		peer, info, id := t.Peer, t.Info, t.ID
		rate, eta := t.meter.Snapshot().RateBps, t.meter.Snapshot().ETA
		ob.add(func() {
			c.callbacks.receiveProgress(peer, info, Progress{ID: id, State: StateInitializing, Progress: 0, RateBps: rate, ETA: eta})
		})
	} else if t.isProgressMarker() {
		peer, info, id := t.Peer, t.Info, t.ID
		pct := t.progressMarker()
		rate, eta := t.meter.Snapshot().RateBps, t.meter.Snapshot().ETA
		ob.add(func() {
			c.callbacks.receiveProgress(peer, info, Progress{ID: id, State: StateDownloading, Progress: pct, RateBps: rate, ETA: eta})
		})
	}

	t.Data = append(t.Data, d.Data...)
	if int64(len(t.Data)) > c.opts.BinarySizeLimit {
		peer, id, nonce := t.Peer, t.ID, t.Nonce
		exc := newException(KindSize, id, nonce, "accumulated data exceeds binary size limit")
		c.terminateLocked(t)
		c.logger.Warn("incoming transfer exceeded size limit", "peer", peer, "id", id)
		ob.add(func() {
			payload, err := wire.Encode(wire.KindError, wire.Error{Message: exc.Message, Info: string(KindSize)})
			if err == nil {
				c.endpoint.Send(peer, wire.KindError, payload)
			}
			c.callbacks.error(peer, exc)
		})
		return
	}

	t.Attempt = 0
	t.Updated = c.now()

	if t.BlockNumber == t.BlockCount-1 {
		c.sendAcknowledgementLocked(t, ob)
		c.finishIncomingTransferLocked(ob, t)
		return
	}

	if int32(t.AckNumber)+int32(t.WindowSize) <= t.BlockNumber+1 {
		c.sendAcknowledgementLocked(t, ob)
	}
}

// finishIncomingTransferLocked marks id finished-incoming, terminates the
// transfer, and fires the FINISHED progress marker followed by the
// receive-complete callback (spec §4.3).
func (c *Core) finishIncomingTransferLocked(ob *outbox, t *Transfer) {
	c.markFinishedIncomingLocked(t.Peer, t.ID)
	peer, info, id, data := t.Peer, t.Info, t.ID, t.Data
	rate := t.meter.Snapshot().RateBps
	c.terminateLocked(t)
	c.logger.Debug("incoming transfer finished", "peer", peer, "id", id)
	ob.add(func() {
		c.callbacks.receiveProgress(peer, info, Progress{ID: id, State: StateFinished, Progress: 100, RateBps: rate})
		c.callbacks.receiveComplete(peer, info, id, data)
	})
}

// sendAcknowledgementLocked sets AckNumber = BlockNumber+1 and emits an
// acknowledgement packet (spec §4.3 send_acknowledgement). Used for the
// initial ack, window-boundary acks, the final ack, and retransmissions.
func (c *Core) sendAcknowledgementLocked(t *Transfer, ob *outbox) {
	t.AckNumber = t.BlockNumber + 1
	peer, number, windowSize, nonce := t.Peer, t.AckNumber, t.WindowSize, t.Nonce
	ob.add(func() {
		payload, err := wire.Encode(wire.KindAcknowledgement, wire.Acknowledgement{
			Number:     number,
			WindowSize: int32(windowSize),
			Nonce:      nonce,
		})
		if err == nil {
			c.endpoint.Send(peer, wire.KindAcknowledgement, payload)
		}
	})
}
