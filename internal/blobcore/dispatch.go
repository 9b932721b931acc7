package blobcore

import (
	"encoding/json"

	"github.com/sheerbytes/blocksend/pkg/wire"
)

func decodeJSON(payload json.RawMessage, out any) error {
	return json.Unmarshal(payload, out)
}

// HandleWriteRequest dispatches an inbound write-request to the receive
// path (spec §4.3 on_write_request). Peers deliver packets to the core in
// the order the overlay receives them (spec §5); callers must preserve
// that order.
func (c *Core) HandleWriteRequest(peer PeerID, wr wire.WriteRequest) {
	var ob outbox
	c.mu.Lock()
	c.onWriteRequestLocked(&ob, peer, wr)
	c.mu.Unlock()
	ob.run()
}

// HandleData dispatches an inbound data block (spec §4.3 on_data).
func (c *Core) HandleData(peer PeerID, d wire.Data) {
	var ob outbox
	c.mu.Lock()
	c.onDataLocked(&ob, peer, d)
	c.mu.Unlock()
	ob.run()
}

// HandleAcknowledgement dispatches an inbound acknowledgement to the send
// path (spec §4.2 on_acknowledgement).
func (c *Core) HandleAcknowledgement(peer PeerID, ack wire.Acknowledgement) {
	var ob outbox
	c.mu.Lock()
	c.onAcknowledgementLocked(&ob, peer, ack)
	c.mu.Unlock()
	ob.run()
}

// HandleError dispatches an inbound error message about the local peer's
// outgoing transfer (spec §4.3 on_error).
func (c *Core) HandleError(peer PeerID, e wire.Error) {
	var ob outbox
	c.mu.Lock()
	c.onRemoteErrorLocked(&ob, peer, e)
	c.mu.Unlock()
	ob.run()
}

// HandleEnvelope decodes a framed wire.Envelope and dispatches it to the
// matching handler. Overlay bindings that deliver raw bytes (rather than
// pre-decoded messages) can use this as their single entry point.
func (c *Core) HandleEnvelope(peer PeerID, raw []byte) error {
	kind, payload, err := wire.Decode(raw)
	if err != nil {
		return err
	}
	switch kind {
	case wire.KindWriteRequest:
		var wr wire.WriteRequest
		if err := decodeJSON(payload, &wr); err != nil {
			return err
		}
		c.HandleWriteRequest(peer, wr)
	case wire.KindAcknowledgement:
		var ack wire.Acknowledgement
		if err := decodeJSON(payload, &ack); err != nil {
			return err
		}
		c.HandleAcknowledgement(peer, ack)
	case wire.KindData:
		var d wire.Data
		if err := decodeJSON(payload, &d); err != nil {
			return err
		}
		c.HandleData(peer, d)
	case wire.KindError:
		var e wire.Error
		if err := decodeJSON(payload, &e); err != nil {
			return err
		}
		c.HandleError(peer, e)
	}
	return nil
}
