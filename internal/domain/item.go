package domain

import (
	"strings"

	"github.com/google/uuid"
)

type NoteType string

const (
	NoteObservation  NoteType = "observation"
	NoteAgentFinding NoteType = "agent_finding"
	NoteSummary      NoteType = "summary"
	NoteConcept      NoteType = "concept"
	NoteTaskRecord   NoteType = "task_record"
	NoteHypothesis   NoteType = "hypothesis"
)

func ValidNoteType(t string) bool {
	switch NoteType(t) {
	case NoteObservation, NoteAgentFinding, NoteSummary, NoteConcept, NoteTaskRecord, NoteHypothesis:
		return true
	}
	return false
}

// NoteTypePriors are the baseline ranking priors per note type. Summaries and
// findings earn a head start; hypotheses are tentative until promoted.
var NoteTypePriors = map[NoteType]float64{
	NoteObservation:  0.5,
	NoteAgentFinding: 0.7,
	NoteSummary:      0.8,
	NoteConcept:      0.6,
	NoteTaskRecord:   0.3,
	NoteHypothesis:   0.4,
}

type ItemStatus string

const (
	StatusActive      ItemStatus = "active"
	StatusArchived    ItemStatus = "archived"
	StatusQuarantined ItemStatus = "quarantined"
)

func ValidItemStatus(s string) bool {
	switch ItemStatus(s) {
	case StatusActive, StatusArchived, StatusQuarantined:
		return true
	}
	return false
}

// AccessScope values: "shared" (or empty) is readable by everyone;
// "agent:<id>" restricts the item to a single requesting agent.
const ScopeShared = "shared"

// ScopeAllows reports whether an item scope admits the requesting agent.
func ScopeAllows(scope, agentID string) bool {
	if scope == "" || scope == ScopeShared {
		return true
	}
	if rest, ok := strings.CutPrefix(scope, "agent:"); ok {
		return rest == agentID
	}
	return false
}

// ItemMeta is the engine's read-only view of an externally owned memory item.
// Content lives in the knowledge store; the engine only consults metadata.
type ItemMeta struct {
	ID          uuid.UUID  `json:"id"`
	Namespace   string     `json:"namespace"`
	AccessScope string     `json:"access_scope"`
	NoteType    NoteType   `json:"note_type"`
	Status      ItemStatus `json:"status"`
}
