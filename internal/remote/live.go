package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

// Message is one push notification from the live channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Conn is an open live channel.
type Conn interface {
	// Read blocks for the next message. A *DecodeError leaves the
	// connection usable; any other error means it is gone.
	Read() (Message, error)
	Close() error
}

// WSDialer opens the live channel over a websocket.
type WSDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for the websocket at url.
func NewWSDialer(url string) *WSDialer {
	return &WSDialer{URL: url}
}

// Dial connects to the live channel.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, &TransportError{Op: "live dial", Err: err}
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read() (Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, &TransportError{Op: "live read", Err: err}
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &DecodeError{Raw: data, Err: err}
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
