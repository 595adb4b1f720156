package server

import (
	"net/http"

	"github.com/askdocs/askdocs-go/internal/metastore"
)

// handleCreateChat handles POST /api/chats. When the user is at the chat
// cap the oldest chat is evicted, so creation always succeeds.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.svc.CreateChat(r.Context(), o, req.Title, req.DocumentIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListChats handles GET /api/chats.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	recs, err := s.svc.ListChats(r.Context(), o)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []*metastore.ChatRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleChatCount handles GET /api/chats/count.
func (s *Server) handleChatCount(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	count, err := s.svc.CountChats(r.Context(), o)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatCountResponse{
		Total:      count,
		Remaining:  max(0, metastore.DefaultMaxChats-count),
		MaxAllowed: metastore.DefaultMaxChats,
	})
}

// handleGetChat handles GET /api/chats/{id}.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	rec, err := s.svc.GetChat(r.Context(), o, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateChat handles PUT /api/chats/{id}. Absent body fields leave
// the corresponding record fields unchanged.
func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var req updateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.svc.UpdateChat(r.Context(), o, r.PathValue("id"), req.Title, req.DocumentIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteChat handles DELETE /api/chats/{id}.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeleteChat(r.Context(), o, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "chat deleted"})
}

// handleAppendMessage handles POST /api/chats/{id}/messages.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var msg metastore.Message
	if err := decodeJSON(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.Sender != metastore.SenderUser && msg.Sender != metastore.SenderSystem {
		writeError(w, http.StatusBadRequest, "sender must be \"user\" or \"system\"")
		return
	}

	rec, err := s.svc.AppendMessage(r.Context(), o, r.PathValue("id"), msg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteMessage handles DELETE /api/chats/{id}/messages/{messageID}.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	rec, err := s.svc.DeleteMessage(r.Context(), o, r.PathValue("id"), r.PathValue("messageID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
