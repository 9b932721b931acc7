package blobcore

import (
	"math"

	"github.com/sheerbytes/blocksend/internal/config"
	"github.com/sheerbytes/blocksend/pkg/wire"
)

// SendBinary is the public entry point for outgoing transfers (spec §4.2).
// It rejects silently when peer is this Core's own identity, on malformed
// input, on a request the caller has already made (scheduled, active, or
// finished), and otherwise either starts the transfer immediately or
// enqueues it for later delivery.
func (c *Core) SendBinary(peer PeerID, info []byte, id string, data []byte, nonce *uint64) {
	if peer == c.self {
		return
	}
	if len(info) == 0 || id == "" || len(data) == 0 {
		return
	}

	var n uint64
	if nonce != nil {
		n = *nonce
	} else {
		n = randomNonce()
	}

	var ob outbox
	c.mu.Lock()
	c.sendBinaryLocked(&ob, peer, info, id, data, n)
	c.mu.Unlock()
	ob.run()
}

func (c *Core) sendBinaryLocked(ob *outbox, peer PeerID, info []byte, id string, data []byte, nonce uint64) {
	if c.isScheduledLocked(peer, id) {
		return
	}
	if cur, ok := c.outgoing[peer]; ok && cur.ID == id {
		return
	}
	if c.isFinishedOutgoingLocked(peer, id) {
		return
	}

	if !c.isAdmissibleLocked(peer) {
		c.enqueueScheduledLocked(peer, ScheduledTransfer{Info: info, Data: data, Nonce: nonce, ID: id})
		peer, id := peer, id
		ob.add(func() {
			c.callbacks.receiveProgress(peer, info, Progress{ID: id, State: StateScheduled, Progress: 0})
		})
		return
	}

	c.startOutgoingTransferLocked(ob, peer, info, id, data, nonce)
}

// startOutgoingTransferLocked re-verifies admission, computes the block
// count, and either installs a new outgoing Transfer and emits a
// write-request, or (if still inadmissible) enqueues, or (if oversized)
// fires a local size error (spec §4.2). Must be called with c.mu held.
func (c *Core) startOutgoingTransferLocked(ob *outbox, peer PeerID, info []byte, id string, data []byte, nonce uint64) {
	if !c.isAdmissibleLocked(peer) {
		c.enqueueScheduledLocked(peer, ScheduledTransfer{Info: info, Data: data, Nonce: nonce, ID: id})
		peer, id := peer, id
		ob.add(func() {
			c.callbacks.receiveProgress(peer, info, Progress{ID: id, State: StateScheduled, Progress: 0})
		})
		return
	}

	dataSize := int64(len(data))
	if dataSize > c.opts.BinarySizeLimit {
		exc := newException(KindSize, id, nonce, "data exceeds binary size limit")
		ob.add(func() { c.callbacks.error(peer, exc) })
		return
	}

	blockCount := int32((dataSize + int64(c.opts.BlockSize) - 1) / int64(c.opts.BlockSize))
	if blockCount == 0 {
		blockCount = 1
	}

	now := c.now()
	t := &Transfer{
		Direction:  DirectionOutgoing,
		Peer:       peer,
		ID:         id,
		Info:       info,
		Nonce:      nonce,
		BlockCount: blockCount,
		DataSize:   dataSize,
		Data:       data,
		Updated:    now,
	}
	c.outgoing[peer] = t
	c.scheduleTerminateTimerLocked(t, now)

	wr := wire.WriteRequest{DataSize: dataSize, BlockCount: blockCount, Nonce: nonce, ID: id, Info: info}
	ob.add(func() {
		payload, err := wire.Encode(wire.KindWriteRequest, wr)
		if err == nil {
			c.endpoint.Send(peer, wire.KindWriteRequest, payload)
		}
	})
	c.logger.Debug("outgoing transfer started", "peer", peer, "id", id, "block_count", blockCount)
}

// onAcknowledgementLocked handles an inbound acknowledgement for an
// outgoing transfer (spec §4.2). Stale numbers and nonce mismatches are
// silently filtered.
func (c *Core) onAcknowledgementLocked(ob *outbox, peer PeerID, ack wire.Acknowledgement) {
	t, ok := c.outgoing[peer]
	if !ok {
		return
	}
	if ack.Number < t.BlockNumber {
		return
	}
	if ack.Nonce != t.Nonce {
		return
	}

	t.BlockNumber = ack.Number
	if t.BlockNumber > t.BlockCount-1 {
		c.finishOutgoingTransferLocked(ob, t)
		return
	}

	windowSize := clampWindow(ack.WindowSize, c.opts.BinarySizeLimit)
	t.WindowSize = windowSize
	t.Updated = c.now()

	blockSize := int64(c.opts.BlockSize)
	data, dataSize, nonce, peerID := t.Data, t.DataSize, t.Nonce, t.Peer
	start := t.BlockNumber
	end := start + int32(windowSize)
	if end > t.BlockCount {
		end = t.BlockCount
	}
	for i := start; i < end; i++ {
		i := i
		lo := int64(i) * blockSize
		hi := lo + blockSize
		if hi > dataSize {
			hi = dataSize
		}
		if lo > int64(len(data)) {
			lo = int64(len(data))
		}
		if hi > int64(len(data)) {
			hi = int64(len(data))
		}
		buf := c.blockBufs.Get()
		block := buf[:copy(buf, data[lo:hi])]
		ob.add(func() {
			payload, err := wire.Encode(wire.KindData, wire.Data{BlockNumber: i, Nonce: nonce, Data: block})
			c.blockBufs.Put(buf)
			if err == nil {
				c.endpoint.Send(peerID, wire.KindData, payload)
			}
		})
	}
}

// clampWindow implements spec §3's window_size clamp to
// [MIN_WINDOW, binary_size_limit].
func clampWindow(w int32, limit int64) uint32 {
	v := int64(w)
	if v < int64(config.MinWindow) {
		v = int64(config.MinWindow)
	}
	if v > limit {
		v = limit
	}
	if v > math.MaxUint32 {
		v = math.MaxUint32
	}
	return uint32(v)
}

// finishOutgoingTransferLocked marks id finished-outgoing, terminates the
// transfer, fires the send-complete callback, and pumps the scheduler
// (spec §4.2).
func (c *Core) finishOutgoingTransferLocked(ob *outbox, t *Transfer) {
	c.markFinishedOutgoingLocked(t.Peer, t.ID)
	peer, info, data, nonce, id := t.Peer, t.Info, t.Data, t.Nonce, t.ID
	c.terminateLocked(t)
	c.logger.Debug("outgoing transfer finished", "peer", peer, "id", id)
	ob.add(func() { c.callbacks.sendComplete(peer, info, data, nonce) })
	ob.add(c.PumpScheduled)
}

// onRemoteErrorLocked handles an inbound error message about this peer's
// outgoing transfer (spec §4.3 on_error).
func (c *Core) onRemoteErrorLocked(ob *outbox, peer PeerID, e wire.Error) {
	t, ok := c.outgoing[peer]
	if !ok {
		return
	}
	id, nonce := t.ID, t.Nonce
	c.terminateLocked(t)
	exc := newException(KindRemote, id, nonce, e.Message)
	c.logger.Warn("outgoing transfer received remote error", "peer", peer, "id", id, "message", e.Message)
	ob.add(func() { c.callbacks.error(peer, exc) })
	ob.add(c.PumpScheduled)
}
