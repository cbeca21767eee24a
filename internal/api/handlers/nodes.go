package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/store"
)

type NodeHandler struct {
	stats domain.StatsStore
	edges domain.EdgeStore
}

func NewNodeHandler(stats domain.StatsStore, edges domain.EdgeStore) *NodeHandler {
	return &NodeHandler{stats: stats, edges: edges}
}

func (h *NodeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	stats, err := h.stats.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node stats not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get node stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type listEdgesResponse struct {
	Edges []domain.Edge `json:"edges"`
	Count int           `json:"count"`
}

func (h *NodeHandler) GetEdges(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	ns := r.URL.Query().Get("namespace")
	if ns == "" {
		writeError(w, http.StatusBadRequest, "namespace parameter is required")
		return
	}

	edges, err := h.edges.ByNode(r.Context(), id, ns)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list edges")
		return
	}

	if edges == nil {
		edges = []domain.Edge{}
	}

	writeJSON(w, http.StatusOK, listEdgesResponse{Edges: edges, Count: len(edges)})
}
