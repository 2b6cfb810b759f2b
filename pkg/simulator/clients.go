package simulator

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// client is one socket subscriber. Writes are serialised per connection.
type client struct {
	conn    *websocket.Conn
	session string

	mu sync.Mutex
}

func (c *client) send(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// clients is a set of socket subscribers.
type clients struct {
	mu  sync.Mutex
	set map[*client]struct{}
}

func newClients() *clients {
	return &clients{set: make(map[*client]struct{})}
}

func (cs *clients) add(c *client) {
	cs.mu.Lock()
	cs.set[c] = struct{}{}
	cs.mu.Unlock()
}

func (cs *clients) remove(c *client) {
	cs.mu.Lock()
	delete(cs.set, c)
	cs.mu.Unlock()
}

func (cs *clients) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.set)
}

func (cs *clients) snapshot(match func(*client) bool) []*client {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]*client, 0, len(cs.set))
	for c := range cs.set {
		if match == nil || match(c) {
			out = append(out, c)
		}
	}
	return out
}

// broadcast sends data to every client and drops the ones that fail.
func (cs *clients) broadcast(data []byte) {
	cs.sendAll(cs.snapshot(nil), data)
}

// sendTo sends data to the clients of one session.
func (cs *clients) sendTo(session string, data []byte) {
	cs.sendAll(cs.snapshot(func(c *client) bool { return c.session == session }), data)
}

func (cs *clients) sendAll(targets []*client, data []byte) {
	for _, c := range targets {
		if err := c.send(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			cs.remove(c)
		}
	}
}

func (cs *clients) closeAll() {
	for _, c := range cs.snapshot(nil) {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		c.mu.Unlock()
		c.conn.Close()
		cs.remove(c)
	}
}
