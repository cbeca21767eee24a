package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/engine"
)

type RetrieveHandler struct {
	svc *engine.RetrievalService
}

func NewRetrieveHandler(svc *engine.RetrievalService) *RetrieveHandler {
	return &RetrieveHandler{svc: svc}
}

type retrieveRequest struct {
	Query      string   `json:"query"`
	Namespaces []string `json:"namespaces"`
	QueryClass string   `json:"query_class"`
	AgentID    string   `json:"agent_id"`
	SessionID  string   `json:"session_id,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
}

func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := &domain.QueryContext{
		Query:      req.Query,
		Namespaces: req.Namespaces,
		QueryClass: domain.QueryClass(req.QueryClass),
		AgentID:    req.AgentID,
		TopK:       req.TopK,
	}

	if req.SessionID != "" {
		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		q.SessionID = sessionID
	}

	result, err := h.svc.Retrieve(r.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrQueryEmpty),
			errors.Is(err, engine.ErrNoNamespaces),
			errors.Is(err, engine.ErrInvalidQueryClass):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "retrieval failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
