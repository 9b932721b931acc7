// Package wire defines the four message payloads the core exchanges with a
// peer (spec §6). Bit-layout serialization is an overlay concern; this
// package only fixes the Go-level shape of each payload and a JSON-based
// encode/decode primitive, the same role pkg/protocol/envelope.go plays for
// the teacher's signaling messages.
package wire

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which of the four message payloads an Envelope carries.
type Kind string

const (
	KindWriteRequest    Kind = "write_request"
	KindAcknowledgement Kind = "acknowledgement"
	KindData            Kind = "data"
	KindError           Kind = "error"
)

// WriteRequest opens a transfer: the sender announces size, block count,
// and the flow's identifying tuple.
type WriteRequest struct {
	DataSize   int64  `json:"data_size"`
	BlockCount int32  `json:"block_count"`
	Nonce      uint64 `json:"nonce"`
	ID         string `json:"id"`
	Info       []byte `json:"info"`
}

// Acknowledgement reports the next expected block and the receiver's
// current window size.
type Acknowledgement struct {
	Number     int32  `json:"number"`
	WindowSize int32  `json:"window_size"`
	Nonce      uint64 `json:"nonce"`
}

// Data carries one block of a blob.
type Data struct {
	BlockNumber int32  `json:"block_number"`
	Nonce       uint64 `json:"nonce"`
	Data        []byte `json:"data"`
}

// Error reports a sender- or receiver-detected fault for a flow.
type Error struct {
	Message string `json:"message"`
	Info    string `json:"info"`
}

// Envelope frames one of the four payloads with its kind for transport.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals a payload (one of WriteRequest, Acknowledgement, Data,
// Error) into a framed Envelope.
func Encode(kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s payload: %w", kind, err)
	}
	env := Envelope{Kind: kind, Payload: raw}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal envelope: %w", err)
	}
	return out, nil
}

// Decode unframes an Envelope and reports its kind alongside the raw
// payload, to be unmarshaled into the kind-appropriate struct by the
// caller.
func Decode(b []byte) (Kind, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}
	return env.Kind, env.Payload, nil
}
