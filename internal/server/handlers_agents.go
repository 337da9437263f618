package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemini-legion/legion/pkg/types"
)

type spawnAgentRequest struct {
	AgentID string       `json:"agentID"`
	Persona types.Persona `json:"persona"`
}

// spawnAgent handles POST /agents.
func (s *Server) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "agentID required")
		return
	}

	agent, err := s.personas.Spawn(r.Context(), req.AgentID, req.Persona)
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// listAgents handles GET /agents.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.personas.List(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// getAgent handles GET /agents/{agentID}.
func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.personas.Get(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// despawnAgent handles DELETE /agents/{agentID}.
func (s *Server) despawnAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.personas.Despawn(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		writeError(w, errorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeSuccess(w)
}

// updatePersona handles PUT /agents/{agentID}/persona.
func (s *Server) updatePersona(w http.ResponseWriter, r *http.Request) {
	var p types.Persona
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	agent, err := s.personas.UpdatePersona(r.Context(), chi.URLParam(r, "agentID"), p)
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// overrideEmotionalState handles POST /agents/{agentID}/emotional-state, an
// admin override distinct from the bounded deltas ObserveTurn applies.
func (s *Server) overrideEmotionalState(w http.ResponseWriter, r *http.Request) {
	var st types.EmotionalState
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	agent, err := s.personas.SetEmotionalState(r.Context(), chi.URLParam(r, "agentID"), st)
	if err != nil {
		writeError(w, errorStatus(err), ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
