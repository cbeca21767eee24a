package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
)

type conceptFixture struct {
	coact *mockCoactivationStore
	items *mockItemStore
	edges *mockEdgeStore
	stats *mockStatsStore
	svc   *ConceptService
}

func newConceptFixture() *conceptFixture {
	f := &conceptFixture{
		coact: newMockCoactivationStore(),
		items: newMockItemStore(),
		edges: newMockEdgeStore(),
		stats: newMockStatsStore(),
	}
	f.svc = NewConceptService(f.coact, f.items, f.edges, f.stats, zap.NewNop())
	return f
}

// coactivate records n joint appearances of every pair among the ids.
func (f *conceptFixture) coactivate(t *testing.T, ns string, n int, ids ...uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			for k := 0; k < n; k++ {
				if err := f.coact.Increment(ctx, ns, ids[i], ids[j]); err != nil {
					t.Fatalf("coactivate: %v", err)
				}
			}
		}
	}
}

func TestFormConceptsCreatesAggregate(t *testing.T) {
	f := newConceptFixture()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f.coactivate(t, "docs", 3, a, b, c)

	result, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("form concepts failed: %v", err)
	}
	if result.ConceptsCreated != 1 {
		t.Fatalf("expected 1 concept created, got %+v", result)
	}

	conceptID := result.ConceptIDs[0]
	meta, err := f.items.Get(context.Background(), conceptID)
	if err != nil {
		t.Fatalf("concept item missing: %v", err)
	}
	if meta.NoteType != domain.NoteConcept {
		t.Fatalf("expected concept note type, got %s", meta.NoteType)
	}

	for _, member := range []uuid.UUID{a, b, c} {
		if _, err := f.edges.Get(context.Background(), member, conceptID, domain.EdgeIsExampleOf, "docs"); err != nil {
			t.Fatalf("member %s has no is_example_of edge: %v", member, err)
		}
	}
}

func TestFormConceptsIdempotent(t *testing.T) {
	f := newConceptFixture()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f.coactivate(t, "docs", 3, a, b, c)

	first, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	second, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if second.ConceptsCreated != 0 || second.ConceptsRefreshed != 1 {
		t.Fatalf("re-run must refresh, not duplicate: %+v", second)
	}
	if first.ConceptIDs[0] != second.ConceptIDs[0] {
		t.Fatal("re-run produced a different concept id for the same cluster")
	}
}

func TestFormConceptsSalienceCeiling(t *testing.T) {
	f := newConceptFixture()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f.coactivate(t, "docs", 3, a, b, c)

	result, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("form concepts failed: %v", err)
	}
	conceptID := result.ConceptIDs[0]

	// Inflate the concept's salience, then re-run: the cap must clamp it.
	if err := f.stats.AdjustSalience(context.Background(), conceptID, 0.5); err != nil {
		t.Fatalf("adjust salience: %v", err)
	}
	if _, err := f.svc.FormConcepts(context.Background()); err != nil {
		t.Fatalf("re-run failed: %v", err)
	}

	st, err := f.stats.Get(context.Background(), conceptID)
	if err != nil {
		t.Fatalf("concept stats missing: %v", err)
	}
	if st.Salience > ConceptSalienceCap {
		t.Fatalf("concept salience %v exceeds ceiling %v", st.Salience, ConceptSalienceCap)
	}
}

func TestFormConceptsIgnoresSmallClusters(t *testing.T) {
	f := newConceptFixture()
	a, b := uuid.New(), uuid.New()
	f.coactivate(t, "docs", 5, a, b) // only two members, below the size floor

	result, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("form concepts failed: %v", err)
	}
	if result.ConceptsCreated != 0 {
		t.Fatalf("two-member cluster must not form a concept: %+v", result)
	}
}

func TestFormConceptsIgnoresWeakPairs(t *testing.T) {
	f := newConceptFixture()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f.coactivate(t, "docs", 1, a, b, c) // below the pair-count floor

	result, err := f.svc.FormConcepts(context.Background())
	if err != nil {
		t.Fatalf("form concepts failed: %v", err)
	}
	if result.ConceptsCreated != 0 {
		t.Fatalf("weak pairs must not form a concept: %+v", result)
	}
}

func TestClusterPairsConnectedComponents(t *testing.T) {
	a, b, c, d, e := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	pairs := []domain.CoactivationPair{
		{ItemA: a, ItemB: b, Count: 3},
		{ItemA: b, ItemB: c, Count: 3},
		{ItemA: d, ItemB: e, Count: 3},
	}
	clusters := clusterPairs("docs", pairs)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 components, got %d", len(clusters))
	}
	sizes := map[int]int{}
	for _, cl := range clusters {
		sizes[len(cl.Members)]++
	}
	if sizes[3] != 1 || sizes[2] != 1 {
		t.Fatalf("expected a 3-member and a 2-member component, got %v", sizes)
	}
}
