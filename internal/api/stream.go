package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptopolis/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxStreamConns = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin checks happen in the CORS layer; the socket itself
	// carries read-only data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHub fans tick snapshots out to websocket subscribers. A slow
// client drops its oldest update instead of stalling the tick loop.
type streamHub struct {
	orch *engine.Orchestrator

	mu    sync.Mutex
	conns map[*streamConn]struct{}
}

type streamConn struct {
	ws   *websocket.Conn
	send chan engine.Snapshot
}

func newStreamHub(orch *engine.Orchestrator) *streamHub {
	h := &streamHub{
		orch:  orch,
		conns: make(map[*streamConn]struct{}),
	}
	orch.OnTick(func(engine.TickSummary) {
		h.broadcast(orch.Snapshot())
	})
	return h
}

func (h *streamHub) broadcast(snap engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- snap:
		default:
			// Buffer full: drop the oldest queued snapshot for the latest.
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- snap:
			default:
			}
		}
	}
}

func (h *streamHub) handleStream(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.conns) >= maxStreamConns
	h.mu.Unlock()
	if full {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &streamConn{ws: ws, send: make(chan engine.Snapshot, 4)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("stream client connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop consumes control frames until the client goes away.
func (h *streamHub) readLoop(c *streamConn) {
	defer h.drop(c)
	c.ws.SetReadLimit(512)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *streamHub) writeLoop(c *streamConn) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		h.drop(c)
	}()
	for {
		select {
		case snap, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *streamHub) drop(c *streamConn) {
	h.mu.Lock()
	_, live := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if live {
		c.ws.Close()
		slog.Info("stream client disconnected")
	}
}
