package domain

import (
	"github.com/google/uuid"
)

type QueryClass string

const (
	QueryClassLookup       QueryClass = "lookup"
	QueryClassDesign       QueryClass = "design"
	QueryClassSynthesis    QueryClass = "synthesis"
	QueryClassTroubleshoot QueryClass = "troubleshoot"
	QueryClassRecall       QueryClass = "recall"
)

func ValidQueryClass(c string) bool {
	switch QueryClass(c) {
	case QueryClassLookup, QueryClassDesign, QueryClassSynthesis, QueryClassTroubleshoot, QueryClassRecall:
		return true
	}
	return false
}

// QueryContext describes one retrieval request.
type QueryContext struct {
	Query      string     `json:"query"`
	Namespaces []string   `json:"namespaces"`
	QueryClass QueryClass `json:"query_class"`
	AgentID    string     `json:"agent_id"`
	SessionID  uuid.UUID  `json:"session_id,omitempty"`
	TopK       int        `json:"top_k,omitempty"`
}

// AllowsNamespace reports whether the query's namespace filter admits ns.
func (q *QueryContext) AllowsNamespace(ns string) bool {
	for _, allowed := range q.Namespaces {
		if allowed == ns {
			return true
		}
	}
	return false
}

// ScoutHit is one scored candidate from one scout, score already normalized
// to [0,1] by the scout.
type ScoutHit struct {
	ItemID  uuid.UUID `json:"item_id"`
	Score   float64   `json:"score"`
	Scout   ScoutKind `json:"scout"`
	Snippet string    `json:"snippet,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Candidate is a deduplicated pool entry with merged score and provenance.
type Candidate struct {
	ItemID  uuid.UUID   `json:"item_id"`
	Meta    ItemMeta    `json:"meta"`
	Score   float64     `json:"score"`
	Scouts  []ScoutKind `json:"scouts"`
	Reasons []string    `json:"reasons,omitempty"`
	Snippet string      `json:"snippet,omitempty"`
}

// ConflictNotice surfaces an unresolved or relevant contradiction touching
// the result set.
type ConflictNotice struct {
	FromID uuid.UUID     `json:"from_id"`
	ToID   uuid.UUID     `json:"to_id"`
	State  ConflictState `json:"state"`
	Weight float64       `json:"weight"`
}

// Selection is one item in the final answer, with the ranker's reasoning.
type Selection struct {
	ItemID  uuid.UUID `json:"item_id"`
	Score   float64   `json:"score"`
	Reason  string    `json:"reason"`
	Snippet string    `json:"snippet,omitempty"`
}

// RetrievalResult is what the engine hands back to the caller.
type RetrievalResult struct {
	ReceiptID    uuid.UUID        `json:"receipt_id"`
	SessionID    uuid.UUID        `json:"session_id,omitempty"`
	QueryClass   QueryClass       `json:"query_class"`
	Items        []Selection      `json:"items"`
	Temperature  float64          `json:"temperature"`
	TerraceDepth int              `json:"terrace_depth"`
	Conflicts    []ConflictNotice `json:"conflicts,omitempty"`
}
