package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/session"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	// The stream is served to the local UI only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one message on the push stream. Exactly one of Entry and
// View is set.
type StreamMessage struct {
	Kind  string        `json:"kind"`
	Entry *oplog.Entry  `json:"entry,omitempty"`
	View  *session.View `json:"view,omitempty"`
}

// hub fans messages out to every connected stream client. Publishing never
// blocks; messages are dropped while the queue is full.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	out     chan []byte
	logger  log.Logger
}

func newHub(logger log.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		out:     make(chan []byte, 256),
		logger:  logger,
	}
}

func jsonMessage(msg StreamMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (h *hub) publish(msg StreamMessage) {
	data, err := jsonMessage(msg)
	if err != nil {
		h.logger.Warn("encode stream message", "error", err.Error())
		return
	}
	select {
	case h.out <- data:
	default:
		h.logger.Debug("stream queue full, message dropped", "kind", msg.Kind)
	}
}

func (h *hub) run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.out:
			h.broadcast(data)
		}
	}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := write(c, data); err != nil {
			c.Close()
			delete(h.clients, c)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		c.Close()
		delete(h.clients, c)
	}
}

// readPump discards client messages and unregisters the client when the
// connection goes away.
func (h *hub) readPump(c *websocket.Conn) {
	defer func() {
		h.remove(c)
		c.Close()
	}()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func write(c *websocket.Conn, data []byte) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, data)
}
