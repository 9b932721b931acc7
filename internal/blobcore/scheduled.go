package blobcore

// ScheduledTransfer is a queued send request awaiting its turn because the
// peer is busy or unreachable (spec §3).
type ScheduledTransfer struct {
	Info          []byte
	Data          []byte
	Nonce         uint64
	ID            string
	BlockCountHint int32
}
