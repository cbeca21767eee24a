package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidConflictTransition(t *testing.T) {
	resolved := []ConflictState{ConflictAcceptedDual, ConflictSuperseded, ConflictRefuted, ConflictMerged}

	for _, to := range resolved {
		if !ValidConflictTransition(ConflictUnreviewed, to) {
			t.Errorf("ValidConflictTransition(unreviewed, %v) = false, want true", to)
		}
	}

	// Resolved states are terminal.
	for _, from := range resolved {
		for _, to := range append(resolved, ConflictUnreviewed) {
			if ValidConflictTransition(from, to) {
				t.Errorf("ValidConflictTransition(%v, %v) = true, want false", from, to)
			}
		}
	}

	if ValidConflictTransition(ConflictUnreviewed, ConflictUnreviewed) {
		t.Error("unreviewed -> unreviewed should be invalid")
	}
}

func TestConflictStateResolved(t *testing.T) {
	if ConflictUnreviewed.Resolved() {
		t.Error("unreviewed should not be resolved")
	}
	for _, s := range []ConflictState{ConflictAcceptedDual, ConflictSuperseded, ConflictRefuted, ConflictMerged} {
		if !s.Resolved() {
			t.Errorf("%v should be resolved", s)
		}
	}
}

func TestScopeAllows(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		agentID string
		want    bool
	}{
		{"empty scope is shared", "", "alice", true},
		{"shared scope", "shared", "alice", true},
		{"matching agent scope", "agent:alice", "alice", true},
		{"other agent scope", "agent:bob", "alice", false},
		{"unknown scope shape", "team:infra", "alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeAllows(tt.scope, tt.agentID); got != tt.want {
				t.Errorf("ScopeAllows(%q, %q) = %v, want %v", tt.scope, tt.agentID, got, tt.want)
			}
		})
	}
}

func TestCanonicalPair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	x, y := CanonicalPair(a, b)
	if x != a || y != b {
		t.Errorf("CanonicalPair(a, b) = (%v, %v), want (a, b)", x, y)
	}

	x, y = CanonicalPair(b, a)
	if x != a || y != b {
		t.Errorf("CanonicalPair(b, a) = (%v, %v), want (a, b)", x, y)
	}
}

func TestConceptClusterKeyStableUnderGrowth(t *testing.T) {
	anchor := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	m2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	m3 := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	small := ConceptCluster{Namespace: "docs", Members: []uuid.UUID{m2, anchor}}
	grown := ConceptCluster{Namespace: "docs", Members: []uuid.UUID{m3, anchor, m2}}

	if small.Key() != grown.Key() {
		t.Error("cluster key should stay stable when the cluster accretes members")
	}

	other := ConceptCluster{Namespace: "infra", Members: []uuid.UUID{anchor, m2}}
	if small.Key() == other.Key() {
		t.Error("cluster key should differ across namespaces")
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {1.7, 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidators(t *testing.T) {
	if !ValidEdgeType("contradicts") || ValidEdgeType("likes") {
		t.Error("ValidEdgeType misclassified")
	}
	if !ValidActorKind("rule") || ValidActorKind("robot") {
		t.Error("ValidActorKind misclassified")
	}
	if !ValidQueryClass("troubleshoot") || ValidQueryClass("TROUBLESHOOT") {
		t.Error("ValidQueryClass misclassified")
	}
	if !ValidNoteType("hypothesis") || ValidNoteType("memo") {
		t.Error("ValidNoteType misclassified")
	}
	if !ValidUsageClass("misleading") || ValidUsageClass("unused") {
		t.Error("ValidUsageClass misclassified")
	}
}
