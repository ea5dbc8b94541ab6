package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WSChannel is a Channel over a WebSocket connection
type WSChannel struct {
	conn *websocket.Conn

	// writeMu protects WebSocket writes from concurrent access
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWSChannel wraps an established connection
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn}
}

// Dial connects to the signaling relay at rawURL as peerID. The token is
// sent both as a bearer header and as a query parameter, since browsers
// cannot set headers on WebSocket requests and the relay accepts either.
func Dial(ctx context.Context, rawURL, token, peerID string) (*WSChannel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signaling URL: %w", err)
	}
	q := u.Query()
	q.Set("peer", peerID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling relay: %w", err)
	}
	return NewWSChannel(conn), nil
}

// Send implements Channel
func (c *WSChannel) Send(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return c.mapErr(err)
	}
	return nil
}

// Receive implements Channel
func (c *WSChannel) Receive(ctx context.Context) (Message, error) {
	var msg Message
	if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
		return Message{}, c.mapErr(err)
	}
	return msg, nil
}

// Close implements Channel. Only the first call closes the connection.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return c.closeErr
}

func (c *WSChannel) mapErr(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
