package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/dispatch"
	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/identity"
)

// ChatHandler runs one chat request.
type ChatHandler interface {
	Handle(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)
}

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
}

// Hub manages WebSocket clients, routes chat requests to the orchestrator
// and pushes each user's pipeline events to that user's clients.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	chat        ChatHandler
	unsubscribe func()
}

// NewHub creates a new WebSocket hub. bus may be nil.
func NewHub(bus *events.Bus, chat ChatHandler) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		chat:    chat,
	}
	if bus != nil {
		h.unsubscribe = bus.Subscribe(h.forward)
	}
	return h
}

func (h *Hub) forward(e events.Event) {
	frame, err := NewEventFrame(string(e.Type), e.ConversationID, e)
	if err != nil {
		slog.Error("marshal event frame", "error", err)
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		slog.Error("marshal frame", "error", err)
		return
	}
	h.sendToUser(e.UserID, data)
}

// sendToUser sends data to every client of userID.
func (h *Hub) sendToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "user_id", c.userID, "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "user_id", c.userID, "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade. The request must carry a user id
// (see identity.Middleware).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks belong to the upstream proxy
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		userID: userID,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Warn("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unknown frame type", "type", frame.Type)
			continue
		}
		c.handleRequest(ctx, frame)
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch Method(frame.Method) {
	case MethodSendMessage:
		var params SendMessageParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendResponse(frame.ID, false, nil, "invalid params")
			return
		}

		resp, err := c.hub.chat.Handle(ctx, dispatch.Request{
			UserID:         c.userID,
			Message:        params.Content,
			ConversationID: params.ConversationID,
		})
		switch {
		case errors.Is(err, conversations.ErrNotFound):
			c.sendResponse(frame.ID, false, nil, "conversation not found")
		case err != nil:
			slog.Error("ws chat request failed", "user_id", c.userID, "error", err)
			c.sendResponse(frame.ID, false, nil, "internal error")
		default:
			c.sendResponse(frame.ID, true, resp, "")
		}

	default:
		c.sendResponse(frame.ID, false, nil, "unknown method: "+frame.Method)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendResponse(id string, ok bool, payload any, errMsg string) {
	f, err := NewResponseFrame(id, ok, payload, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, live := c.hub.clients[c]; !live {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
