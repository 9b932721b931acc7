package overlaywire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// signalMessage carries one ICE credential/candidate exchange over the
// signaling WebSocket — the out-of-band channel peers use to bootstrap a
// direct connection (spec.md places this kind of signaling out of the
// core's scope; overlaywire supplies a minimal concrete one).
type signalMessage struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Ufrag      string   `json:"ufrag,omitempty"`
	Pwd        string   `json:"pwd,omitempty"`
	Candidate  string   `json:"candidate,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// signalConn is a serialized-write WebSocket connection used to exchange
// signalMessages with a rendezvous server, grounded on the teacher's
// wsclient.Conn (dedicated writer goroutine, buffered send channel). The
// read side has no ping/pong keepalive.
type signalConn struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	sendChan chan signalMessage
	done     chan struct{}
	writeMu  sync.Mutex
}

var signalDialer = websocket.Dialer{HandshakeTimeout: 5 * time.Second}

func dialSignaling(ctx context.Context, wsURL string, logger *slog.Logger) (*signalConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("overlaywire: parse signaling url: %w", err)
	}
	conn, resp, err := signalDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("overlaywire: signaling upgrade failed (%d)", resp.StatusCode)
		}
		return nil, fmt.Errorf("overlaywire: dial signaling: %w", err)
	}
	c := &signalConn{
		conn:     conn,
		logger:   logger,
		sendChan: make(chan signalMessage, 64),
		done:     make(chan struct{}),
	}
	go c.writeLoop()
	return c, nil
}

func (c *signalConn) writeLoop() {
	defer close(c.done)
	for msg := range c.sendChan {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := c.conn.WriteJSON(msg)
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Warn("signaling write failed", "error", err)
			return
		}
	}
}

// send queues msg for delivery; non-blocking once the connection is torn
// down.
func (c *signalConn) send(msg signalMessage) error {
	select {
	case c.sendChan <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("overlaywire: signaling connection closed")
	}
}

// readLoop delivers incoming signalMessages to onMessage until the
// connection closes or ctx is cancelled.
func (c *signalConn) readLoop(ctx context.Context, onMessage func(signalMessage)) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg signalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("invalid signaling message", "error", err)
			continue
		}
		onMessage(msg)
	}
}

func (c *signalConn) Close() error {
	close(c.sendChan)
	<-c.done
	return c.conn.Close()
}
