package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScoutReport records whether a scout fired and what it returned. Scouts
// that timed out or errored are kept in the receipt with Fired=false so a
// degraded retrieval is auditable.
type ScoutReport struct {
	Kind  ScoutKind `json:"kind"`
	Fired bool      `json:"fired"`
	Hits  int       `json:"hits"`
	Error string    `json:"error,omitempty"`
}

// Receipt is the immutable record of one retrieval decision. Receipts are
// append-only; nothing updates or deletes them.
type Receipt struct {
	ID             uuid.UUID        `json:"id"`
	Query          string           `json:"query"`
	Namespaces     []string         `json:"namespaces"`
	QueryClass     QueryClass       `json:"query_class"`
	Temperature    float64          `json:"temperature"`
	Scouts         []ScoutReport    `json:"scouts"`
	CandidateCount int              `json:"candidate_count"`
	RankedCount    int              `json:"ranked_count"`
	TerraceDepth   int              `json:"terrace_depth"`
	Selections     []Selection      `json:"selections"`
	Conflicts      []ConflictNotice `json:"conflicts,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
