package overlaywire

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/ice/v2"
)

// icePeer wraps one pion/ice/v2 Agent and the single candidate pair it
// negotiates with a remote peer, grounded on the teacher's Prober
// (internal/ice/ice.go) — narrowed from STUN-probe-and-dial-QUIC to
// straight ICE connectivity establishment, since blocksend's datagrams
// need a NAT-crossing net.Conn, not a QUIC stream.
type icePeer struct {
	agent *ice.Agent
	conn  *ice.Conn
}

// defaultSTUNServers mirrors the teacher's DefaultStunServers list.
var defaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

func newICEPeer(stunServers []string) (*icePeer, error) {
	if len(stunServers) == 0 {
		stunServers = defaultSTUNServers
	}
	urls := make([]*ice.URL, 0, len(stunServers))
	for _, s := range stunServers {
		u, err := ice.ParseURL("stun:" + s)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}

	agent, err := ice.NewAgent(&ice.AgentConfig{
		Urls:         urls,
		NetworkTypes: []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
	})
	if err != nil {
		return nil, fmt.Errorf("overlaywire: create ICE agent: %w", err)
	}
	return &icePeer{agent: agent}, nil
}

// gather starts candidate collection, delivering each discovered candidate
// to onCandidate as it is found.
func (p *icePeer) gather(onCandidate func(candidate string)) error {
	if err := p.agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			return
		}
		onCandidate(c.Marshal())
	}); err != nil {
		return fmt.Errorf("overlaywire: register candidate handler: %w", err)
	}
	if err := p.agent.GatherCandidates(); err != nil {
		return fmt.Errorf("overlaywire: gather candidates: %w", err)
	}
	return nil
}

// localCredentials returns this agent's ufrag/password, to be sent to the
// remote peer over the signaling channel.
func (p *icePeer) localCredentials() (ufrag, pwd string, err error) {
	return p.agent.GetLocalUserCredentials()
}

// addRemoteCandidate installs a candidate received from the remote peer.
func (p *icePeer) addRemoteCandidate(marshaled string) error {
	c, err := ice.UnmarshalCandidate(marshaled)
	if err != nil {
		return fmt.Errorf("overlaywire: unmarshal remote candidate: %w", err)
	}
	return p.agent.AddRemoteCandidate(c)
}

// dial completes the connectivity check as the controlling agent (the
// side that initiated SendBinary's underlying peer connection).
func (p *icePeer) dial(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error) {
	conn, err := p.agent.Dial(ctx, remoteUfrag, remotePwd)
	if err != nil {
		return nil, fmt.Errorf("overlaywire: ICE dial: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// accept completes the connectivity check as the controlled agent.
func (p *icePeer) accept(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error) {
	conn, err := p.agent.Accept(ctx, remoteUfrag, remotePwd)
	if err != nil {
		return nil, fmt.Errorf("overlaywire: ICE accept: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *icePeer) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return p.agent.Close()
}
