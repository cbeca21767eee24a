package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/engine"
)

type EdgeHandler struct {
	edges     domain.EdgeStore
	conflicts *engine.ConflictService
}

func NewEdgeHandler(edges domain.EdgeStore, conflicts *engine.ConflictService) *EdgeHandler {
	return &EdgeHandler{edges: edges, conflicts: conflicts}
}

type createEdgeRequest struct {
	FromID    string         `json:"from_id"`
	ToID      string         `json:"to_id"`
	Type      string         `json:"type"`
	Namespace string         `json:"namespace"`
	Weight    float64        `json:"weight,omitempty"`
	ActorID   string         `json:"actor_id"`
	ActorKind string         `json:"actor_kind"`
	Evidence  map[string]any `json:"evidence,omitempty"`
}

// Create upserts a typed edge. Contradicts edges go through the conflict
// workflow so they pick up the weight floor and unreviewed state.
func (h *EdgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fromID, err := uuid.Parse(req.FromID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from_id")
		return
	}
	toID, err := uuid.Parse(req.ToID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_id")
		return
	}
	if !domain.ValidEdgeType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid edge type")
		return
	}
	if !domain.ValidActorKind(req.ActorKind) {
		writeError(w, http.StatusBadRequest, "invalid actor_kind")
		return
	}
	if req.Namespace == "" {
		writeError(w, http.StatusBadRequest, "namespace is required")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	if domain.EdgeType(req.Type) == domain.EdgeContradicts {
		err := h.conflicts.Detect(r.Context(), fromID, toID, req.Namespace, req.ActorID, domain.ActorKind(req.ActorKind))
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrUnattributedContradicts),
				errors.Is(err, engine.ErrSameItemContradiction):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "failed to record contradiction")
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "contradiction recorded"})
		return
	}

	edge := &domain.Edge{
		ID:        uuid.New(),
		FromID:    fromID,
		ToID:      toID,
		Type:      domain.EdgeType(req.Type),
		Namespace: req.Namespace,
		Weight:    domain.Clamp01(req.Weight),
		ActorID:   req.ActorID,
		ActorKind: domain.ActorKind(req.ActorKind),
		Evidence:  req.Evidence,
	}

	if err := h.edges.Upsert(r.Context(), edge); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to upsert edge")
		return
	}

	writeJSON(w, http.StatusCreated, edge)
}

type resolveConflictRequest struct {
	FromID     string `json:"from_id"`
	ToID       string `json:"to_id"`
	Namespace  string `json:"namespace"`
	Resolution string `json:"resolution"`
	ActorID    string `json:"actor_id"`
}

func (h *EdgeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fromID, err := uuid.Parse(req.FromID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from_id")
		return
	}
	toID, err := uuid.Parse(req.ToID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_id")
		return
	}
	if !domain.ValidConflictState(req.Resolution) {
		writeError(w, http.StatusBadRequest, "invalid resolution state")
		return
	}

	err = h.conflicts.Resolve(r.Context(), fromID, toID, req.Namespace, domain.ConflictState(req.Resolution), req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrConflictNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, engine.ErrConflictAlreadyResolved):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, engine.ErrUnattributedResolution),
			errors.Is(err, engine.ErrInvalidConflictState):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to resolve conflict")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "resolution": req.Resolution})
}
