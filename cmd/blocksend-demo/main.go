// Command blocksend-demo wires two blobcore.Core instances together over
// an in-memory overlay and drives one SendBinary call end to end, logging
// each progress callback — a thin flag-parsing wrapper over the library
// packages, the same role cmd/thru/main.go plays for the teacher's CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sheerbytes/blocksend/internal/blobcore"
	"github.com/sheerbytes/blocksend/internal/config"
	"github.com/sheerbytes/blocksend/internal/logging"
	"github.com/sheerbytes/blocksend/internal/transport"
)

func main() {
	// Registered on flag.CommandLine but not parsed yet: config.ParseOptions
	// below registers its own flags (-block-size, -window-size, ...) on the
	// same FlagSet and performs the single Parse call, so every flag is
	// recognized regardless of which package declared it.
	var (
		peerA     = flag.String("peer-a", "alice", "identity of the sending peer")
		peerB     = flag.String("peer-b", "bob", "identity of the receiving peer")
		sizeBytes = flag.Int("size", 1<<20, "size in bytes of the random blob to send")
		logLevel  = flag.String("log-level", "info", "debug|info|warn|error")
	)
	opts := config.ParseOptions()

	logger := logging.New("blocksend-demo", *logLevel)

	overlay := blobcore.NewMockOverlay()
	defer overlay.Stop()

	done := make(chan struct{})
	var start time.Time

	receiverCB := blobcore.Callbacks{
		OnReceiveProgress: func(peer blobcore.PeerID, info []byte, p blobcore.Progress) {
			logger.Info("receive progress", "peer", peer, "id", p.ID, "state", p.State, "pct", p.Progress)
		},
		OnReceiveComplete: func(peer blobcore.PeerID, info []byte, id string, data []byte) {
			logger.Info("receive complete", "peer", peer, "id", id, "bytes", len(data), "elapsed", time.Since(start))
			close(done)
		},
		OnError: func(peer blobcore.PeerID, err *blobcore.TransferException) {
			logger.Error("receiver error", "peer", peer, "error", err)
		},
	}
	senderCB := blobcore.Callbacks{
		OnSendComplete: func(peer blobcore.PeerID, info []byte, data []byte, nonce uint64) {
			logger.Info("send complete", "peer", peer, "bytes", len(data))
		},
		OnError: func(peer blobcore.PeerID, err *blobcore.TransferException) {
			logger.Error("sender error", "peer", peer, "error", err)
		},
	}

	sender := blobcore.New(blobcore.PeerID(*peerA), overlay.EndpointFor(blobcore.PeerID(*peerA)), overlay.DirectoryFor(blobcore.PeerID(*peerA)), senderCB, opts, logger)
	receiver := blobcore.New(blobcore.PeerID(*peerB), overlay.EndpointFor(blobcore.PeerID(*peerB)), overlay.DirectoryFor(blobcore.PeerID(*peerB)), receiverCB, opts, logger)
	overlay.Register(blobcore.PeerID(*peerA), sender)
	overlay.Register(blobcore.PeerID(*peerB), receiver)
	sender.Start()
	receiver.Start()
	defer sender.Stop()
	defer receiver.Stop()

	data := make([]byte, *sizeBytes)
	for i := range data {
		data[i] = byte(i)
	}

	logger.Info("starting demo transfer", "from", *peerA, "to", *peerB, "size", transport.FormatBytesGiB(int64(len(data))), "block_size", opts.BlockSize)
	start = time.Now()
	sender.SendBinary(blobcore.PeerID(*peerB), []byte("demo-blob"), "demo-xfer", data, nil)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "blocksend-demo: timed out waiting for transfer to complete")
		os.Exit(1)
	}
}
