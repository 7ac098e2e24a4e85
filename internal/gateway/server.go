// Package gateway exposes the chat pipeline over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/dispatch"
	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/gateway/ws"
	"github.com/dohr-michael/taskchat/internal/identity"
	"github.com/dohr-michael/taskchat/internal/tools"
)

const (
	defaultEventLimit   = 50
	defaultMessageLimit = 100
)

// Deps are the components the gateway serves.
type Deps struct {
	Chat          ws.ChatHandler
	Conversations *conversations.Manager
	Executor      dispatch.TaskExecutor
	Registry      *tools.Registry
	// EventBus is optional.
	EventBus *events.Bus
}

// Server is the taskchat gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	deps       Deps
}

// NewServer creates a new gateway server.
func NewServer(deps Deps, host string, port int) *Server {
	hub := ws.NewHub(deps.EventBus, deps.Chat)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{hub: hub, deps: deps}

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware)

		r.Post("/api/chat", s.handleChat)
		r.Get("/api/ws", hub.ServeWS)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/tools", s.handleTools)
		r.Get("/api/tasks", s.handleTasks)

		r.Route("/api/conversations", func(r chi.Router) {
			r.Get("/", s.handleConversations)
			r.Get("/{id}/messages", s.handleMessages)
			r.Delete("/{id}", s.handleDeactivate)
		})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("taskchat gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// user returns the caller; identity.Middleware guarantees it is set.
func user(r *http.Request) string {
	id, _ := identity.UserFrom(r.Context())
	return id
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.deps.Chat.Handle(r.Context(), dispatch.Request{
		UserID:         user(r),
		Message:        body.Message,
		ConversationID: body.ConversationID,
	})
	if err != nil {
		s.conversationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) conversationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, conversations.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	slog.Error("request failed", "path", r.URL.Path, "user_id", user(r), "request_id", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.EventBus == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	history := s.deps.EventBus.HistoryFor(user(r), queryInt(r, "limit", defaultEventLimit))
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.Describe())
}
