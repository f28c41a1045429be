package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/newmanjoel/Lights/controller"
	"github.com/newmanjoel/Lights/util"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// DefaultCoalesceWindow is the minimum gap between two state messages to
	// one client. Frame changes in between are merged, the latest wins.
	DefaultCoalesceWindow = 50 * time.Millisecond
)

const (
	typeStateInit    = "state_init"
	typeStateChanged = "state_changed"
)

// envelope is the wire format of every websocket message.
type envelope struct {
	Type string               `json:"type"`
	Ts   time.Time            `json:"ts"`
	Data controller.LiveState `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub streams the live state to websocket clients. Every client gets a
// state_init message on connect and a state_changed message whenever the
// render loop publishes, at most once per coalesce window.
type Hub struct {
	state    *util.Snapshot[controller.LiveState]
	shutdown *util.Shutdown
	window   time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn       *websocket.Conn
	remoteAddr string
	gone       chan struct{}
}

func NewHub(state *util.Snapshot[controller.LiveState], shutdown *util.Shutdown) *Hub {
	return &Hub{
		state:    state,
		shutdown: shutdown,
		window:   DefaultCoalesceWindow,
		clients:  map[*wsClient]struct{}{},
	}
}

func (h *Hub) SetCoalesceWindow(d time.Duration) {
	h.window = d
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err, "request_id", requestIDFrom(r.Context()))
		return
	}
	c := &wsClient{conn: conn, remoteAddr: r.RemoteAddr, gone: make(chan struct{})}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("Websocket client connected", "remote_addr", c.remoteAddr, "clients", n)

	// the request context ends when this handler returns, the pumps own the
	// connection from here on
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		slog.Info("Websocket client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func (h *Hub) send(c *wsClient, kind string, state controller.LiveState) error {
	msg, err := json.Marshal(envelope{Type: kind, Ts: time.Now().UTC(), Data: state})
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (h *Hub) writePump(c *wsClient) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	coalesce := time.NewTimer(h.window)
	coalesce.Stop()
	defer coalesce.Stop()

	state, changed := h.state.Watch()
	if err := h.send(c, typeStateInit, state); err != nil {
		h.remove(c, "write error")
		return
	}
	for {
		select {
		case <-h.shutdown.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			h.remove(c, "shutdown")
			return
		case <-c.gone:
			h.remove(c, "closed by client")
			return
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c, "ping error")
				return
			}
		case <-changed:
			changed = nil
			coalesce.Reset(h.window)
		case <-coalesce.C:
			state, changed = h.state.Watch()
			if err := h.send(c, typeStateChanged, state); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					slog.Info("Websocket write failed", "remote_addr", c.remoteAddr, "error", err)
				}
				h.remove(c, "write error")
				return
			}
		}
	}
}

// readPump discards incoming messages. It only exists to process control
// frames and to notice the client going away.
func (h *Hub) readPump(c *wsClient) {
	defer close(c.gone)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
