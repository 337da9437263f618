package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/pkg/types"
)

type createChannelRequest struct {
	Type        types.ChannelType `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Members     []string          `json:"members,omitempty"`
	CreatedBy   string            `json:"createdBy,omitempty"`
}

// createChannel handles POST /channels.
func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	ch, err := s.channels.CreateChannel(r.Context(), channel.ChannelSpec{
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		Members:     req.Members,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// listChannels handles GET /channels.
func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.ListChannels(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// getChannel handles GET /channels/{channelID}.
func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.channels.GetChannel(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// deleteChannel handles DELETE /channels/{channelID}.
func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.channels.DeleteChannel(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		writeError(w, errorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeSuccess(w)
}

type memberRequest struct {
	EntityID string `json:"entityID"`
}

// addMember handles POST /channels/{channelID}/members.
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "entityID required")
		return
	}
	if err := s.channels.AddMember(r.Context(), chi.URLParam(r, "channelID"), req.EntityID); err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeSuccess(w)
}

// removeMember handles DELETE /channels/{channelID}/members/{entityID}.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	entityID := chi.URLParam(r, "entityID")
	if err := s.channels.RemoveMember(r.Context(), channelID, entityID); err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeSuccess(w)
}

type postMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// postMessage handles POST /channels/{channelID}/messages.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content required")
		return
	}

	msg, err := s.channels.PostMessage(r.Context(), chi.URLParam(r, "channelID"), req.Sender, senderKindFor(req.Sender), req.Content, types.MessageChat, nil)
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// listMessages handles GET /channels/{channelID}/messages?limit=&before=.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	before := r.URL.Query().Get("before")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := s.channels.ListMessages(r.Context(), chi.URLParam(r, "channelID"), before, limit)
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
