package domain

import (
	"time"

	"github.com/google/uuid"
)

type EdgeType string

const (
	EdgeRelatedTo   EdgeType = "related_to"
	EdgeSupports    EdgeType = "supports"
	EdgeContradicts EdgeType = "contradicts"
	EdgeIsExampleOf EdgeType = "is_example_of"
	EdgeDependsOn   EdgeType = "depends_on"
	EdgeAnalogyTo   EdgeType = "analogy_to"
)

func ValidEdgeType(t string) bool {
	switch EdgeType(t) {
	case EdgeRelatedTo, EdgeSupports, EdgeContradicts, EdgeIsExampleOf, EdgeDependsOn, EdgeAnalogyTo:
		return true
	}
	return false
}

type ActorKind string

const (
	ActorHuman ActorKind = "human"
	ActorAgent ActorKind = "agent"
	ActorRule  ActorKind = "rule"
)

func ValidActorKind(k string) bool {
	switch ActorKind(k) {
	case ActorHuman, ActorAgent, ActorRule:
		return true
	}
	return false
}

// ConflictState is carried only by contradicts edges. New conflicts start
// unreviewed; every other state is terminal and reachable only by an
// explicit, attributed resolution.
type ConflictState string

const (
	ConflictUnreviewed   ConflictState = "unreviewed"
	ConflictAcceptedDual ConflictState = "accepted_dual"
	ConflictSuperseded   ConflictState = "superseded"
	ConflictRefuted      ConflictState = "refuted"
	ConflictMerged       ConflictState = "merged"
)

func ValidConflictState(s string) bool {
	switch ConflictState(s) {
	case ConflictUnreviewed, ConflictAcceptedDual, ConflictSuperseded, ConflictRefuted, ConflictMerged:
		return true
	}
	return false
}

// Resolved reports whether the state is terminal.
func (c ConflictState) Resolved() bool {
	switch c {
	case ConflictAcceptedDual, ConflictSuperseded, ConflictRefuted, ConflictMerged:
		return true
	}
	return false
}

// ValidConflictTransition allows unreviewed -> any resolved state, nothing else.
func ValidConflictTransition(from, to ConflictState) bool {
	return from == ConflictUnreviewed && to.Resolved()
}

// Edge is a directed, typed, weighted relationship between two items.
// Edges are uniquely keyed by (from, to, type, namespace); reinforcing an
// existing edge updates weight and updated_at rather than duplicating.
type Edge struct {
	ID            uuid.UUID      `json:"id"`
	FromID        uuid.UUID      `json:"from_id"`
	ToID          uuid.UUID      `json:"to_id"`
	Type          EdgeType       `json:"type"`
	Namespace     string         `json:"namespace"`
	Weight        float64        `json:"weight"`
	ActorID       string         `json:"actor_id"`
	ActorKind     ActorKind      `json:"actor_kind"`
	Evidence      map[string]any `json:"evidence,omitempty"`
	ConflictState *ConflictState `json:"conflict_state,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Touches reports whether the edge connects any pair of the given ids.
func (e *Edge) Touches(ids map[uuid.UUID]bool) bool {
	return ids[e.FromID] && ids[e.ToID]
}

// Clamp01 bounds weights and saliences to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
