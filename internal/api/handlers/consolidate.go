package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/engine"
)

type ConsolidateHandler struct {
	consolidator *engine.Consolidator
	concepts     *engine.ConceptService
}

func NewConsolidateHandler(consolidator *engine.Consolidator, concepts *engine.ConceptService) *ConsolidateHandler {
	return &ConsolidateHandler{consolidator: consolidator, concepts: concepts}
}

type consolidateRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// Consolidate closes a session when session_id is given, otherwise runs a
// standalone concept formation sweep.
func (h *ConsolidateHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SessionID == "" {
		result, err := h.concepts.FormConcepts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "concept formation failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	result, err := h.consolidator.CloseSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, engine.ErrSessionUnknown) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "consolidation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
