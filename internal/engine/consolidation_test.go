package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
)

type consolidationFixture struct {
	sessions *SessionTracker
	stats    *mockStatsStore
	edges    *mockEdgeStore
	items    *mockItemStore
	coact    *mockCoactivationStore
	svc      *Consolidator
}

func newConsolidationFixture() *consolidationFixture {
	f := &consolidationFixture{
		sessions: NewSessionTracker(),
		stats:    newMockStatsStore(),
		edges:    newMockEdgeStore(),
		items:    newMockItemStore(),
		coact:    newMockCoactivationStore(),
	}
	logger := zap.NewNop()
	concepts := NewConceptService(f.coact, f.items, f.edges, f.stats, logger)
	f.svc = NewConsolidator(f.sessions, f.stats, f.edges, f.items, concepts, logger)
	return f
}

func TestCloseSessionReinforcesRecurringItems(t *testing.T) {
	f := newConsolidationFixture()
	a := activeItem("docs")
	b := activeItem("docs")
	once := activeItem("docs")
	f.items.add(a)
	f.items.add(b)
	f.items.add(once)

	sessionID := uuid.New()
	ids := []uuid.UUID{a.ID, b.ID}
	f.sessions.Observe(sessionID, []string{"docs"}, append(ids, once.ID))
	f.sessions.Observe(sessionID, []string{"docs"}, ids) // a and b recur

	result, err := f.svc.CloseSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("close session failed: %v", err)
	}
	if result.EdgesReinforced != 1 {
		t.Fatalf("expected 1 reinforced pair, got %d", result.EdgesReinforced)
	}

	x, y := domain.CanonicalPair(a.ID, b.ID)
	e, err := f.edges.Get(context.Background(), x, y, domain.EdgeRelatedTo, "docs")
	if err != nil {
		t.Fatalf("recurring pair edge missing: %v", err)
	}
	if e.Weight <= 0 {
		t.Fatalf("expected positive reinforcement, got %v", e.Weight)
	}

	// The single-appearance item earned no edges.
	edges, err := f.edges.ByNode(context.Background(), once.ID, "docs")
	if err != nil {
		t.Fatalf("edge scan failed: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("non-recurring item must not be reinforced, got %+v", edges)
	}
}

func TestCloseSessionPromotesUsedHypothesis(t *testing.T) {
	f := newConsolidationFixture()
	hyp := activeItem("docs")
	hyp.NoteType = domain.NoteHypothesis
	f.items.add(hyp)

	sessionID := uuid.New()
	f.sessions.Observe(sessionID, []string{"docs"}, []uuid.UUID{hyp.ID})
	f.sessions.MarkUsed(sessionID, []uuid.UUID{hyp.ID})

	result, err := f.svc.CloseSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("close session failed: %v", err)
	}
	if result.HypothesesPromoted != 1 {
		t.Fatalf("expected 1 promotion, got %d", result.HypothesesPromoted)
	}

	meta, err := f.items.Get(context.Background(), hyp.ID)
	if err != nil {
		t.Fatalf("item missing: %v", err)
	}
	if meta.NoteType != domain.NoteAgentFinding {
		t.Fatalf("expected promotion to agent_finding, got %s", meta.NoteType)
	}
}

func TestCloseSessionKeepsContradictedHypothesis(t *testing.T) {
	f := newConsolidationFixture()
	hyp := activeItem("docs")
	hyp.NoteType = domain.NoteHypothesis
	rival := activeItem("docs")
	f.items.add(hyp)
	f.items.add(rival)

	if err := f.edges.RaiseFloor(context.Background(), rival.ID, hyp.ID, domain.EdgeContradicts, "docs", 0.6, "rule", domain.ActorRule); err != nil {
		t.Fatalf("seed contradiction: %v", err)
	}

	sessionID := uuid.New()
	f.sessions.Observe(sessionID, []string{"docs"}, []uuid.UUID{hyp.ID})
	f.sessions.MarkUsed(sessionID, []uuid.UUID{hyp.ID})

	result, err := f.svc.CloseSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("close session failed: %v", err)
	}
	if result.HypothesesPromoted != 0 {
		t.Fatal("a hypothesis with an open contradiction must not be promoted")
	}

	meta, _ := f.items.Get(context.Background(), hyp.ID)
	if meta.NoteType != domain.NoteHypothesis {
		t.Fatalf("note type changed unexpectedly to %s", meta.NoteType)
	}
}

func TestCloseSessionUnknownSession(t *testing.T) {
	f := newConsolidationFixture()
	if _, err := f.svc.CloseSession(context.Background(), uuid.New()); !errors.Is(err, ErrSessionUnknown) {
		t.Fatalf("expected unknown-session error, got %v", err)
	}
}

func TestSessionTrackerLifecycle(t *testing.T) {
	tr := NewSessionTracker()
	sessionID := uuid.New()
	a, b := uuid.New(), uuid.New()

	tr.Observe(uuid.Nil, []string{"docs"}, []uuid.UUID{a}) // nil sessions are dropped
	tr.Observe(sessionID, []string{"docs"}, []uuid.UUID{a, b})
	tr.Observe(sessionID, []string{"docs"}, []uuid.UUID{a})
	tr.MarkUsed(sessionID, []uuid.UUID{b})

	state := tr.Close(sessionID)
	if state == nil {
		t.Fatal("expected session state")
	}
	if state.Counts[a] != 2 || state.Counts[b] != 1 {
		t.Fatalf("unexpected counts: %+v", state.Counts)
	}
	if !state.Used[b] || state.Used[a] {
		t.Fatalf("unexpected used set: %+v", state.Used)
	}
	if tr.Close(sessionID) != nil {
		t.Fatal("closing twice must return nil")
	}
}
