package blobcore

import "fmt"

// Kind is the error taxonomy from spec §7.
type Kind string

const (
	KindSize           Kind = "size_error"
	KindValue          Kind = "value_error"
	KindPeerBusy       Kind = "peer_busy_error"
	KindTimeout        Kind = "timeout_error"
	KindRemote         Kind = "transfer_error"
	KindNonceCollision Kind = "nonce_collision_error"
)

// TransferException is the payload delivered to OnError (spec §6).
type TransferException struct {
	Kind    Kind
	ID      string
	Nonce   uint64
	Message string
}

func (e *TransferException) Error() string {
	return fmt.Sprintf("%s: %s (id=%s)", e.Kind, e.Message, e.ID)
}

func newException(kind Kind, id string, nonce uint64, message string) *TransferException {
	return &TransferException{Kind: kind, ID: id, Nonce: nonce, Message: message}
}
