package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans scan results out to websocket clients. New clients get the last
// result right away.
type hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan types.ScanResult
	latest     *types.ScanResult
	done       chan struct{}
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan types.ScanResult
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan types.ScanResult, 16),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			h.clients = map[*client]struct{}{}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.latest != nil {
				c.send <- *h.latest
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case res := <-h.broadcast:
			h.latest = &res
			for c := range h.clients {
				select {
				case c.send <- res:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// publish never blocks the scan handler.
func (h *hub) publish(res types.ScanResult) {
	select {
	case h.broadcast <- res:
	default:
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "Failed to upgrade websocket", "error", err)
		return
	}
	cl := &client{hub: s.hub, conn: conn, send: make(chan types.ScanResult, 8)}
	select {
	case s.hub.register <- cl:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

// readPump only watches for the client going away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case res, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(res); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
