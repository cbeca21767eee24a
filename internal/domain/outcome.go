package domain

import (
	"github.com/google/uuid"
)

// UsageClass is the learning engine's verdict for one returned item.
// Every item in a retrieval lands in exactly one class.
type UsageClass string

const (
	UsageUsed       UsageClass = "used"
	UsageIgnored    UsageClass = "ignored"
	UsageMisleading UsageClass = "misleading"
)

func ValidUsageClass(c string) bool {
	switch UsageClass(c) {
	case UsageUsed, UsageIgnored, UsageMisleading:
		return true
	}
	return false
}

// FeedbackItem is an explicit user signal about one returned item. Feedback
// can reclassify an item into misleading, overriding the overlap heuristic.
type FeedbackItem struct {
	ItemID uuid.UUID  `json:"item_id"`
	Signal UsageClass `json:"signal"`
}

// Outcome reports what happened after a retrieval: the produced output,
// explicit citations, and optional feedback. Learning only runs on a
// completed retrieval, never mid-flight.
type Outcome struct {
	ReceiptID uuid.UUID      `json:"receipt_id"`
	SessionID uuid.UUID      `json:"session_id,omitempty"`
	Output    string         `json:"output"`
	Citations []uuid.UUID    `json:"citations,omitempty"`
	Feedback  []FeedbackItem `json:"feedback,omitempty"`
}
