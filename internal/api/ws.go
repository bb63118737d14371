// ABOUTME: WebSocket subscribe endpoint for live conversation updates
// ABOUTME: Handles history replay, live fan-out, and duplicate suppression per connection

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/auth"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/dedupe"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/messaging"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 512

	// seenTTL and seenCap bound the per-connection duplicate window.
	// The window only needs to cover the replay/live overlap.
	seenTTL = 5 * time.Minute
	seenCap = 4096
)

// subscribe upgrades the request to a websocket and streams messages
// for one conversation. An optional since=<RFC3339> query parameter
// replays stored messages newer than the given time before live
// delivery begins. The subscription is registered before the replay
// query runs, so a message that commits during replay arrives on both
// paths; the per-connection dedupe cache delivers it once.
func (h *handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Membership gate before anything touches the registry, so a
	// rejected request never holds a subscription, even briefly. Errors
	// surface as plain HTTP because the connection is not yet upgraded.
	if err := h.service.CheckParticipant(ctx, conversationID, id.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sub := h.broadcaster.Subscribe(ctx, conversationID)

	// The replay snapshot is taken after the subscription is registered,
	// so a message committing in between arrives on at least one path.
	var history []*store.Message
	if !since.IsZero() {
		var err error
		history, err = h.service.FetchMessages(ctx, conversationID, id.UserID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(ws)
	conn.start()
	defer conn.close(websocket.CloseNormalClosure, "")

	// Reader loop exists to detect the client going away.
	go func() {
		defer cancel()
		ws.SetReadLimit(maxFrameSize)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	seen := dedupe.New(seenTTL, seenCap, 0)
	defer seen.Close()

	log := h.logger.With("conversation_id", conversationID, "user_id", id.UserID)

	if !since.IsZero() {
		for _, msg := range history {
			if !msg.CreatedAt.After(since) {
				continue
			}
			if !seen.Observe(msg.ID) {
				continue
			}
			if err := conn.sendJSON(renderMessage(msg)); err != nil {
				log.Debug("replay write failed", "error", err)
				return
			}
		}
	}

	for msg := range sub.Events() {
		if !seen.Observe(msg.ID) {
			continue
		}
		if err := conn.sendJSON(renderMessage(msg)); err != nil {
			log.Debug("live write failed", "error", err)
			return
		}
	}

	// The events channel closed: either the client went away, the
	// server is shutting down, or the subscription overflowed. An
	// overflowed client must reconnect and reconcile from history.
	if sub.State() == messaging.StateFailed {
		log.Warn("subscription overflowed, closing connection")
		conn.close(websocket.CloseTryAgainLater, "subscription overflow")
	}
}

// checkOrigin accepts any origin when no allowlist is configured.
func (h *handlers) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// wsConn coordinates outbound writes on a websocket via a buffered
// channel so the delivery loop and the ping ticker never interleave
// writes.
type wsConn struct {
	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) start() {
	go c.writeLoop()
}

func (c *wsConn) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	case c.send <- payload:
		return nil
	}
}

func (c *wsConn) close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// A write failure must unblock senders, not just exit the loop.
	defer c.close(websocket.CloseAbnormalClosure, "")

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
