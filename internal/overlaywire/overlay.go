package overlaywire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sheerbytes/blocksend/internal/blobcore"
)

// Overlay bundles the signaling client, the Endpoint, and the Directory
// that together satisfy blobcore's endpoint.send / community.get_peers
// contract for one local process.
type Overlay struct {
	Self      blobcore.PeerID
	Directory *Directory
	Endpoint  *Endpoint

	signaling *signalConn
	core      *blobcore.Core
	logger    *slog.Logger
	stunURLs  []string

	mu         sync.Mutex
	handshakes map[blobcore.PeerID]*pendingHandshake
}

// NewPeerKey mints an opaque long-lived peer identity. A random UUID is
// used rather than the per-transfer nonce's random-uint64 scheme (spec.md
// §9) because a peer key must resist collision across the lifetime of
// many processes, not just one transfer.
func NewPeerKey() blobcore.PeerID {
	return blobcore.PeerID(uuid.NewString())
}

// Dial connects to a signaling server and returns an Overlay ready to
// Connect out to remote peers or accept their inbound handshakes. core's
// background loops (core.Start) must already be running.
func Dial(ctx context.Context, signalingURL string, self blobcore.PeerID, core *blobcore.Core, logger *slog.Logger, stunURLs []string) (*Overlay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dialSignaling(ctx, signalingURL, logger)
	if err != nil {
		return nil, err
	}
	o := &Overlay{
		Self:       self,
		Directory:  NewDirectory(),
		Endpoint:   NewEndpoint(logger),
		signaling:  conn,
		core:       core,
		logger:     logger,
		stunURLs:   stunURLs,
		handshakes: make(map[blobcore.PeerID]*pendingHandshake),
	}
	go func() {
		if err := conn.readLoop(ctx, o.onSignal); err != nil {
			logger.Debug("signaling connection closed", "error", err)
		}
	}()
	return o, nil
}

// pendingHandshake tracks one in-flight ICE negotiation with a remote
// peer: the local agent, and a channel closed once the remote's
// credentials have arrived over signaling.
type pendingHandshake struct {
	peer        *icePeer
	ready       chan struct{}
	readyOnce   sync.Once
	remoteUfrag string
	remotePwd   string
}

func (o *Overlay) handshakeFor(peerID blobcore.PeerID) (*pendingHandshake, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	hs, ok := o.handshakes[peerID]
	return hs, ok
}

func (o *Overlay) newHandshakeLocked(peerID blobcore.PeerID) (*pendingHandshake, error) {
	icePeer, err := newICEPeer(o.stunURLs)
	if err != nil {
		return nil, err
	}
	hs := &pendingHandshake{peer: icePeer, ready: make(chan struct{})}
	o.handshakes[peerID] = hs
	return hs, nil
}

// Connect initiates an outbound (controlling) connection to remote:
// gathers local candidates, sends credentials over signaling, waits for
// the remote's reply, and dials once both sides are known.
func (o *Overlay) Connect(ctx context.Context, remote blobcore.PeerID) error {
	o.mu.Lock()
	hs, err := o.newHandshakeLocked(remote)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	if err := o.announce(remote, hs.peer); err != nil {
		return err
	}

	select {
	case <-hs.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	conn, err := hs.peer.dial(ctx, hs.remoteUfrag, hs.remotePwd)
	if err != nil {
		return err
	}
	o.Endpoint.AddConnection(remote, conn, o.core, o.Directory)
	return nil
}

// announce gathers local candidates for peer and sends this process's
// credentials and candidate list to remote over signaling.
func (o *Overlay) announce(remote blobcore.PeerID, peer *icePeer) error {
	ufrag, pwd, err := peer.localCredentials()
	if err != nil {
		return fmt.Errorf("overlaywire: local credentials: %w", err)
	}
	var candidates []string
	if err := peer.gather(func(c string) { candidates = append(candidates, c) }); err != nil {
		return err
	}
	return o.signaling.send(signalMessage{
		From:       string(o.Self),
		To:         string(remote),
		Ufrag:      ufrag,
		Pwd:        pwd,
		Candidates: candidates,
	})
}

// onSignal handles an inbound signaling message: records the remote's
// credentials/candidates against the matching handshake (creating one, and
// accepting inbound, if this is the first message from a peer we haven't
// dialed ourselves).
func (o *Overlay) onSignal(msg signalMessage) {
	from := blobcore.PeerID(msg.From)

	o.mu.Lock()
	hs, known := o.handshakes[from]
	isInbound := !known
	var err error
	if !known {
		hs, err = o.newHandshakeLocked(from)
	}
	o.mu.Unlock()
	if err != nil {
		o.logger.Warn("failed to create ICE agent for inbound peer", "peer", from, "error", err)
		return
	}

	if msg.Ufrag != "" {
		hs.remoteUfrag = msg.Ufrag
		hs.remotePwd = msg.Pwd
		hs.readyOnce.Do(func() { close(hs.ready) })
	}
	for _, c := range msg.Candidates {
		if err := hs.peer.addRemoteCandidate(c); err != nil {
			o.logger.Warn("invalid remote candidate", "peer", from, "error", err)
		}
	}
	if msg.Candidate != "" {
		if err := hs.peer.addRemoteCandidate(msg.Candidate); err != nil {
			o.logger.Warn("invalid remote candidate", "peer", from, "error", err)
		}
	}

	if isInbound && msg.Ufrag != "" {
		go o.acceptInbound(from, hs)
	}
}

func (o *Overlay) acceptInbound(from blobcore.PeerID, hs *pendingHandshake) {
	if err := o.announce(from, hs.peer); err != nil {
		o.logger.Warn("announce for inbound accept", "peer", from, "error", err)
		return
	}
	conn, err := hs.peer.accept(context.Background(), hs.remoteUfrag, hs.remotePwd)
	if err != nil {
		o.logger.Warn("ICE accept failed", "peer", from, "error", err)
		return
	}
	o.Endpoint.AddConnection(from, conn, o.core, o.Directory)
}

// Close tears down the signaling connection. Established peer connections
// are left running; callers should RemoveConnection each peer first if a
// clean shutdown is needed.
func (o *Overlay) Close() error {
	return o.signaling.Close()
}
