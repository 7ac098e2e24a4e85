package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Executor.Execute(r.Context(), user(r), tools.ListTasks{
		Status:   taskstore.Status(q.Get("status")),
		Priority: taskstore.Priority(q.Get("priority")),
		Search:   q.Get("q"),
	})
	if err != nil {
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.conversationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Payload())
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all")
	list, err := s.deps.Conversations.List(user(r), all == "1" || all == "true")
	if err != nil {
		s.conversationError(w, r, err)
		return
	}
	if list == nil {
		list = []*conversations.Conversation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Conversations.Recent(user(r), chi.URLParam(r, "id"), queryInt(r, "limit", defaultMessageLimit))
	if err != nil {
		s.conversationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Conversations.Deactivate(user(r), chi.URLParam(r, "id")); err != nil {
		s.conversationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
