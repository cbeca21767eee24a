package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/store"
)

const defaultReceiptLimit = 50

type ReceiptHandler struct {
	receipts domain.ReceiptStore
}

func NewReceiptHandler(receipts domain.ReceiptStore) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

func (h *ReceiptHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt id")
		return
	}

	receipt, err := h.receipts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receipt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

type listReceiptsResponse struct {
	Receipts []domain.Receipt `json:"receipts"`
	Count    int              `json:"count"`
}

func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	ns := r.URL.Query().Get("namespace")
	if ns == "" {
		writeError(w, http.StatusBadRequest, "namespace parameter is required")
		return
	}

	var since *time.Time
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339")
			return
		}
		since = &t
	}

	limit := defaultReceiptLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	receipts, err := h.receipts.List(r.Context(), ns, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}

	if receipts == nil {
		receipts = []domain.Receipt{}
	}

	writeJSON(w, http.StatusOK, listReceiptsResponse{Receipts: receipts, Count: len(receipts)})
}
