package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
)

func activeItem(ns string) domain.ItemMeta {
	return domain.ItemMeta{
		ID:          uuid.New(),
		Namespace:   ns,
		AccessScope: domain.ScopeShared,
		NoteType:    domain.NoteObservation,
		Status:      domain.StatusActive,
	}
}

func TestMergeCandidatesGatesNamespace(t *testing.T) {
	items := newMockItemStore()
	allowed := activeItem("docs")
	denied := activeItem("private")
	items.add(allowed)
	items.add(denied)

	q := &domain.QueryContext{Query: "q", Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	hits := []domain.ScoutHit{
		{ItemID: allowed.ID, Score: 0.9, Scout: domain.ScoutLexical},
		{ItemID: denied.ID, Score: 0.95, Scout: domain.ScoutLexical},
	}

	pool, err := MergeCandidates(context.Background(), hits, q, items)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(pool))
	}
	for _, c := range pool {
		if !q.AllowsNamespace(c.Meta.Namespace) {
			t.Fatalf("candidate %s escaped the namespace gate", c.ItemID)
		}
	}
}

func TestMergeCandidatesGatesScopeAndStatus(t *testing.T) {
	items := newMockItemStore()
	shared := activeItem("docs")
	private := activeItem("docs")
	private.AccessScope = "agent:other"
	quarantined := activeItem("docs")
	quarantined.Status = domain.StatusQuarantined
	items.add(shared)
	items.add(private)
	items.add(quarantined)

	q := &domain.QueryContext{Query: "q", Namespaces: []string{"docs"}, AgentID: "me", QueryClass: domain.QueryClassLookup}
	hits := []domain.ScoutHit{
		{ItemID: shared.ID, Score: 0.5, Scout: domain.ScoutVector},
		{ItemID: private.ID, Score: 0.8, Scout: domain.ScoutVector},
		{ItemID: quarantined.ID, Score: 0.9, Scout: domain.ScoutVector},
	}

	pool, err := MergeCandidates(context.Background(), hits, q, items)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if len(pool) != 1 || pool[0].ItemID != shared.ID {
		t.Fatalf("expected only the shared active item, got %+v", pool)
	}
}

func TestMergeCandidatesCombinesWithMax(t *testing.T) {
	items := newMockItemStore()
	item := activeItem("docs")
	items.add(item)

	q := &domain.QueryContext{Query: "q", Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	hits := []domain.ScoutHit{
		{ItemID: item.ID, Score: 0.4, Scout: domain.ScoutLexical, Reason: "term match"},
		{ItemID: item.ID, Score: 0.7, Scout: domain.ScoutVector, Reason: "similar"},
		{ItemID: item.ID, Score: 0.2, Scout: domain.ScoutRecency},
	}

	pool, err := MergeCandidates(context.Background(), hits, q, items)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected deduplication to 1 candidate, got %d", len(pool))
	}
	c := pool[0]
	if c.Score != 0.7 {
		t.Fatalf("expected max-combined score 0.7, got %v", c.Score)
	}
	if len(c.Scouts) != 3 {
		t.Fatalf("expected provenance from 3 scouts, got %v", c.Scouts)
	}
	if len(c.Reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", c.Reasons)
	}

	// Monotonicity: raising a contributing score never lowers the merged one.
	hits[2].Score = 0.9
	pool, err = MergeCandidates(context.Background(), hits, q, items)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if pool[0].Score < 0.7 {
		t.Fatalf("merged score decreased after raising an input: %v", pool[0].Score)
	}
}
