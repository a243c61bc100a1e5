package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/roach88/morgisync/internal/remote"
)

// connBuffer is how many undelivered messages a fake connection holds
// before it is treated as dead.
const connBuffer = 256

type fakeConn struct {
	owner *FakeRemote
	msgs  chan remote.Message
	done  chan struct{}
	once  sync.Once
}

func (c *fakeConn) Read() (remote.Message, error) {
	// Prefer queued messages so nothing sent before a close is lost.
	select {
	case msg := <-c.msgs:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.msgs:
		return msg, nil
	case <-c.done:
		return remote.Message{}, &remote.TransportError{Op: "live read", Err: errors.New("connection closed")}
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.owner.mu.Lock()
		delete(c.owner.conns, c)
		c.owner.mu.Unlock()
	})
	return nil
}

// Dial opens a live connection that receives every message broadcast from
// now on.
func (f *FakeRemote) Dial(ctx context.Context) (remote.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginLocked("live dial"); err != nil {
		return nil, err
	}
	c := &fakeConn{
		owner: f,
		msgs:  make(chan remote.Message, connBuffer),
		done:  make(chan struct{}),
	}
	f.conns[c] = struct{}{}
	return c, nil
}

// ConnCount returns the number of open live connections.
func (f *FakeRemote) ConnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// DropConnections closes every live connection, as a server restart would.
func (f *FakeRemote) DropConnections() {
	f.mu.Lock()
	conns := make([]*fakeConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Push broadcasts msg to every live connection without changing state.
func (f *FakeRemote) Push(msg remote.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(msg)
}

// broadcastLocked delivers msg to every connection. A connection whose
// buffer is full is closed. Must be called with f.mu held.
func (f *FakeRemote) broadcastLocked(msg remote.Message) {
	for c := range f.conns {
		select {
		case c.msgs <- msg:
		default:
			delete(f.conns, c)
			c.once.Do(func() { close(c.done) })
		}
	}
}

func engineMsg(typ string, payload any) remote.Message {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("testutil: marshal payload: " + err.Error())
	}
	return remote.Message{Type: typ, Payload: data}
}

// Drain returns the messages queued on a connection opened by Dial
// without blocking. Other connections yield nil.
func Drain(c remote.Conn) []remote.Message {
	fc, ok := c.(*fakeConn)
	if !ok {
		return nil
	}
	var out []remote.Message
	for {
		select {
		case msg := <-fc.msgs:
			out = append(out, msg)
		default:
			return out
		}
	}
}
