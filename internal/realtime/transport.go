package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrTransportClosed is returned by Conn operations after Close.
var ErrTransportClosed = errors.New("realtime: transport closed")

// Conn is one established transport connection. ReadFrame blocks until a
// frame arrives or the connection fails.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Dialer establishes transport connections. It exists so tests and the
// synthetic fallback can stand in for the live websocket.
type Dialer interface {
	Dial(ctx context.Context, socketURL string) (Conn, error)
}

// WebsocketDialer dials the live socket endpoint.
type WebsocketDialer struct{}

// NewWebsocketDialer constructs the production dialer.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{}
}

// Dial opens a websocket connection to socketURL.
func (d *WebsocketDialer) Dial(ctx context.Context, socketURL string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, socketURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *websocketConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}

// syntheticConn satisfies the Conn contract without a server. It acknowledges
// registration and echoes sends back as inbound frames, so subscribers see
// the same event stream whether the transport is real or simulated.
type syntheticConn struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSyntheticConn() *syntheticConn {
	return &syntheticConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *syntheticConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.done:
		return nil, ErrTransportClosed
	}
}

func (c *syntheticConn) WriteFrame(data []byte) error {
	select {
	case <-c.done:
		return ErrTransportClosed
	default:
	}

	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}

	switch frame.Event {
	case frameEventRegister:
		c.enqueue(wireFrame{Event: frameEventRegisterSuccess, Email: frame.Email})
	case frameEventSendMessage:
		payload, err := json.Marshal(nestedPayload{
			ID:        frame.ID,
			Text:      frame.Text,
			From:      frame.From,
			Timestamp: frame.Timestamp,
		})
		if err != nil {
			return nil
		}
		c.enqueue(wireFrame{
			Event:          frameEventNewMessage,
			ConversationID: frame.ConversationID,
			Message:        payload,
		})
	}
	return nil
}

func (c *syntheticConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *syntheticConn) enqueue(frame wireFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.frames <- data:
	default:
	}
}
