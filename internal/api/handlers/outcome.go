package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/engine"
)

type OutcomeHandler struct {
	svc *engine.LearningService
}

func NewOutcomeHandler(svc *engine.LearningService) *OutcomeHandler {
	return &OutcomeHandler{svc: svc}
}

type outcomeRequest struct {
	ReceiptID string   `json:"receipt_id"`
	SessionID string   `json:"session_id,omitempty"`
	Output    string   `json:"output"`
	Citations []string `json:"citations,omitempty"`
	Feedback  []struct {
		ItemID string `json:"item_id"`
		Signal string `json:"signal"`
	} `json:"feedback,omitempty"`
}

func (h *OutcomeHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receiptID, err := uuid.Parse(req.ReceiptID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt_id")
		return
	}

	out := &domain.Outcome{
		ReceiptID: receiptID,
		Output:    req.Output,
	}

	if req.SessionID != "" {
		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		out.SessionID = sessionID
	}

	for _, c := range req.Citations {
		id, err := uuid.Parse(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid citation id")
			return
		}
		out.Citations = append(out.Citations, id)
	}

	for _, f := range req.Feedback {
		id, err := uuid.Parse(f.ItemID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid feedback item_id")
			return
		}
		if !domain.ValidUsageClass(f.Signal) {
			writeError(w, http.StatusBadRequest, "invalid feedback signal")
			return
		}
		out.Feedback = append(out.Feedback, domain.FeedbackItem{
			ItemID: id,
			Signal: domain.UsageClass(f.Signal),
		})
	}

	report, err := h.svc.ReportOutcome(r.Context(), out)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrReceiptNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, engine.ErrOutcomeEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to process outcome")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}
