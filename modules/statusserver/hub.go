package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// hub fans bus events out to websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	dropped int
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// broadcast never blocks; a client that cannot keep up misses the event.
func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *hub) stats() (clients, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients), h.dropped
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// serveWS streams events to the client and accepts utterances from it.
func (s *StatusServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, s.cfg.ClientBuffer)}
	s.hub.add(c)
	s.logger.Debug("Websocket client connected", "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(s.ctx, c)
}

func (s *StatusServer) readPump(ctx context.Context, c *client) {
	defer func() {
		s.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req UtteranceRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}
		payload, err := req.speech()
		if err != nil {
			s.logger.Debug("Ignoring websocket utterance", "error", err)
			continue
		}
		if err := s.app.Bus().Emit(ctx, ModuleName, payload); err != nil {
			s.logger.Error("Failed to publish utterance", "error", err)
		}
	}
}

func (s *StatusServer) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleEvent implements sage.EventHandler.
func (s *StatusServer) HandleEvent(_ context.Context, event eventbus.Event) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.hub.broadcast(msg)
	return nil
}

// Subscriptions implements sage.EventHandler.
func (s *StatusServer) Subscriptions() []eventbus.Type {
	return []eventbus.Type{
		eventbus.TypeSpeechRecognized,
		eventbus.TypeStateChanged,
		eventbus.TypeSpeakRequest,
		eventbus.TypeCommandResult,
		eventbus.TypeCommandFailed,
		eventbus.TypeReminderDue,
		eventbus.TypeModuleLoaded,
		eventbus.TypeModuleUnloaded,
		eventbus.TypeModuleError,
	}
}

var _ sage.EventHandler = (*StatusServer)(nil)
