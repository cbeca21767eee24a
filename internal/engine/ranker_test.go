package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terracehq/terrace/internal/domain"
)

func candidateOf(meta domain.ItemMeta, score float64) domain.Candidate {
	return domain.Candidate{ItemID: meta.ID, Meta: meta, Score: score, Scouts: []domain.ScoutKind{domain.ScoutLexical}}
}

func TestRankTypePriorBreaksTies(t *testing.T) {
	summary := activeItem("docs")
	summary.NoteType = domain.NoteSummary
	task := activeItem("docs")
	task.NoteType = domain.NoteTaskRecord

	q := &domain.QueryContext{Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	ranked := NewRanker().Rank(
		[]domain.Candidate{candidateOf(task, 0.5), candidateOf(summary, 0.5)},
		map[uuid.UUID]*domain.NodeStats{},
		nil, q, time.Now(),
	)

	require.Len(t, ranked, 2)
	assert.Equal(t, summary.ID, ranked[0].ItemID, "summary prior should outrank task_record at equal base score")
	assert.Greater(t, ranked[0].Breakdown.FinalScore, ranked[1].Breakdown.FinalScore)
}

func TestRankPenalizesMisleadingHistory(t *testing.T) {
	clean := activeItem("docs")
	dirty := activeItem("docs")

	stats := map[uuid.UUID]*domain.NodeStats{
		clean.ID: domain.NewNodeStats(clean.ID),
		dirty.ID: domain.NewNodeStats(dirty.ID),
	}
	stats[dirty.ID].MisleadingCount = 2
	stats[dirty.ID].IgnoredCount = 8
	stats[dirty.ID].RetrievalCount = 2

	q := &domain.QueryContext{Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	ranked := NewRanker().Rank(
		[]domain.Candidate{candidateOf(dirty, 0.6), candidateOf(clean, 0.6)},
		stats, nil, q, time.Now(),
	)

	require.Len(t, ranked, 2)
	assert.Equal(t, clean.ID, ranked[0].ItemID, "adverse stats should drag an equal-base candidate down")
}

func TestRankConceptOverusePenalty(t *testing.T) {
	concept := activeItem("docs")
	concept.NoteType = domain.NoteConcept

	now := time.Now()
	fresh := domain.NewNodeStats(concept.ID)
	windowStart := now.Add(-time.Hour)
	fresh.RecentWindowStart = &windowStart
	fresh.RecentRetrievals = 4

	q := &domain.QueryContext{Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	r := NewRanker()

	withPenalty := r.Rank([]domain.Candidate{candidateOf(concept, 0.5)},
		map[uuid.UUID]*domain.NodeStats{concept.ID: fresh}, nil, q, now)
	require.Len(t, withPenalty, 1)
	assert.InDelta(t, 0.2, withPenalty[0].Breakdown.ConceptOveruse, 1e-9, "4 recent retrievals at 0.05 each")

	// Outside the 24h window the penalty resets.
	stale := domain.NewNodeStats(concept.ID)
	oldStart := now.Add(-25 * time.Hour)
	stale.RecentWindowStart = &oldStart
	stale.RecentRetrievals = 10

	without := r.Rank([]domain.Candidate{candidateOf(concept, 0.5)},
		map[uuid.UUID]*domain.NodeStats{concept.ID: stale}, nil, q, now)
	assert.Zero(t, without[0].Breakdown.ConceptOveruse)

	// The schedule caps at 0.4 no matter how hot the concept is.
	hot := domain.NewNodeStats(concept.ID)
	hot.RecentWindowStart = &windowStart
	hot.RecentRetrievals = 50
	capped := r.Rank([]domain.Candidate{candidateOf(concept, 0.5)},
		map[uuid.UUID]*domain.NodeStats{concept.ID: hot}, nil, q, now)
	assert.InDelta(t, ConceptOveruseCap, capped[0].Breakdown.ConceptOveruse, 1e-9)
}

func TestDiversifySuppressesNearDuplicates(t *testing.T) {
	q := &domain.QueryContext{Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}

	a := activeItem("docs")
	b := activeItem("docs") // tightly linked to a
	c := activeItem("docs") // unlinked

	edges := []domain.Edge{
		{FromID: a.ID, ToID: b.ID, Type: domain.EdgeRelatedTo, Namespace: "docs", Weight: 0.95},
	}

	r := NewRanker()
	r.PassLimit = 2
	ranked := r.Rank(
		[]domain.Candidate{candidateOf(a, 0.9), candidateOf(b, 0.85), candidateOf(c, 0.5)},
		map[uuid.UUID]*domain.NodeStats{}, edges, q, time.Now(),
	)

	require.Len(t, ranked, 2)
	assert.Equal(t, a.ID, ranked[0].ItemID)
	assert.Equal(t, c.ID, ranked[1].ItemID, "diversity should prefer the unlinked candidate over a's near-duplicate")
}

func TestRankTruncatesToPassLimit(t *testing.T) {
	q := &domain.QueryContext{Namespaces: []string{"docs"}, QueryClass: domain.QueryClassLookup}
	var pool []domain.Candidate
	for i := 0; i < 60; i++ {
		pool = append(pool, candidateOf(activeItem("docs"), float64(i)/100))
	}
	ranked := NewRanker().Rank(pool, map[uuid.UUID]*domain.NodeStats{}, nil, q, time.Now())
	assert.Len(t, ranked, DefaultPassLimit)
}
