package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
)

// Terrace-1 ranking defaults.
const (
	DefaultTypePriorWeight      = 0.25
	DefaultNamespaceWeight      = 0.15
	DefaultGraphAffinityWeight  = 0.15
	DefaultDecayBoostWeight     = 0.10
	DefaultIgnoredWeight        = 0.20
	DefaultMisleadingWeight     = 0.30
	DefaultConceptOveruseWeight = 0.15

	DefaultDiversityLambda = 0.3
	DefaultKeepLimit       = 200
	DefaultPassLimit       = 30

	// Concept overuse schedule: penalty per retrieval inside the 24h window,
	// capped so concepts stay gateways rather than vanishing entirely.
	ConceptOverusePerRetrieval = 0.05
	ConceptOveruseCap          = 0.4
	ConceptRecentWindow        = 24 * time.Hour
)

// RankWeights are the terrace-1 term weights. Tunable, but the defaults are
// the contract other components are calibrated against.
type RankWeights struct {
	TypePrior      float64
	Namespace      float64
	GraphAffinity  float64
	DecayBoost     float64
	Ignored        float64
	Misleading     float64
	ConceptOveruse float64
}

func DefaultRankWeights() RankWeights {
	return RankWeights{
		TypePrior:      DefaultTypePriorWeight,
		Namespace:      DefaultNamespaceWeight,
		GraphAffinity:  DefaultGraphAffinityWeight,
		DecayBoost:     DefaultDecayBoostWeight,
		Ignored:        DefaultIgnoredWeight,
		Misleading:     DefaultMisleadingWeight,
		ConceptOveruse: DefaultConceptOveruseWeight,
	}
}

// RankBreakdown records each term that moved a candidate's score, so the
// receipt can explain why an item was surfaced.
type RankBreakdown struct {
	Base           float64 `json:"base"`
	TypePrior      float64 `json:"type_prior"`
	Namespace      float64 `json:"namespace_affinity"`
	GraphAffinity  float64 `json:"graph_affinity"`
	DecayBoost     float64 `json:"decay_boost"`
	Ignored        float64 `json:"ignored_penalty,omitempty"`
	Misleading     float64 `json:"misleading_penalty,omitempty"`
	ConceptOveruse float64 `json:"concept_overuse_penalty,omitempty"`
	FinalScore     float64 `json:"final_score"`
}

// RankedCandidate pairs a pool candidate with its terrace-1 breakdown.
type RankedCandidate struct {
	domain.Candidate
	Breakdown *RankBreakdown `json:"breakdown,omitempty"`
}

// Ranker is the deterministic terrace-1 stage: weighted re-rank followed by
// maximal-marginal-relevance diversity suppression.
type Ranker struct {
	Weights   RankWeights
	Lambda    float64
	KeepLimit int
	PassLimit int
}

func NewRanker() *Ranker {
	return &Ranker{
		Weights:   DefaultRankWeights(),
		Lambda:    DefaultDiversityLambda,
		KeepLimit: DefaultKeepLimit,
		PassLimit: DefaultPassLimit,
	}
}

// Rank scores every candidate, truncates to the keep limit, then diversifies
// down to the pass limit. Stats and edges are read-only inputs; the ranker
// never mutates the store.
func (r *Ranker) Rank(candidates []domain.Candidate, stats map[uuid.UUID]*domain.NodeStats, edges []domain.Edge, q *domain.QueryContext, now time.Time) []RankedCandidate {
	affinity := pairWeights(edges)

	scored := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, r.score(c, stats[c.ItemID], candidates, affinity, q, now))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Breakdown.FinalScore > scored[j].Breakdown.FinalScore
	})

	if len(scored) > r.KeepLimit {
		scored = scored[:r.KeepLimit]
	}
	return r.diversify(scored, affinity)
}

func (r *Ranker) score(c domain.Candidate, st *domain.NodeStats, pool []domain.Candidate, affinity map[[2]uuid.UUID]float64, q *domain.QueryContext, now time.Time) RankedCandidate {
	b := RankBreakdown{Base: c.Score}

	b.TypePrior = domain.NoteTypePriors[c.Meta.NoteType]
	if st != nil {
		b.TypePrior = domain.Clamp01(b.TypePrior + st.ClassPrior(q.QueryClass))
	}

	b.Namespace = namespaceAffinity(c.Meta.Namespace, q.Namespaces)
	b.GraphAffinity = graphAffinity(c.ItemID, pool, affinity)

	if st != nil {
		b.DecayBoost = (st.Salience + st.Strength) / 2
		b.Ignored = ratio(st.IgnoredCount, st.IgnoredCount+st.RetrievalCount)
		b.Misleading = capped(float64(st.MisleadingCount)/3, 1)
		if c.Meta.NoteType == domain.NoteConcept {
			b.ConceptOveruse = conceptOveruse(st, now)
		}
	}

	w := r.Weights
	b.FinalScore = b.Base +
		w.TypePrior*b.TypePrior +
		w.Namespace*b.Namespace +
		w.GraphAffinity*b.GraphAffinity +
		w.DecayBoost*b.DecayBoost -
		w.Ignored*b.Ignored -
		w.Misleading*b.Misleading -
		w.ConceptOveruse*b.ConceptOveruse

	return RankedCandidate{Candidate: c, Breakdown: &b}
}

// diversify greedily selects candidates maximizing relevance minus
// lambda-scaled similarity to what is already selected, with edge weight as
// the similarity signal.
func (r *Ranker) diversify(scored []RankedCandidate, affinity map[[2]uuid.UUID]float64) []RankedCandidate {
	limit := r.PassLimit
	if len(scored) <= limit {
		return scored
	}

	selected := make([]RankedCandidate, 0, limit)
	remaining := append([]RankedCandidate(nil), scored...)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestVal := marginalValue(remaining[0], selected, affinity, r.Lambda)
		for i := 1; i < len(remaining); i++ {
			if v := marginalValue(remaining[i], selected, affinity, r.Lambda); v > bestVal {
				bestIdx, bestVal = i, v
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func marginalValue(c RankedCandidate, selected []RankedCandidate, affinity map[[2]uuid.UUID]float64, lambda float64) float64 {
	var maxSim float64
	for _, s := range selected {
		a, b := domain.CanonicalPair(c.ItemID, s.ItemID)
		if w := affinity[[2]uuid.UUID{a, b}]; w > maxSim {
			maxSim = w
		}
	}
	return c.Breakdown.FinalScore - lambda*maxSim
}

// namespaceAffinity prefers namespaces listed earlier in the query filter.
func namespaceAffinity(ns string, allowed []string) float64 {
	for i, a := range allowed {
		if a == ns {
			return 1 - float64(i)/float64(len(allowed))
		}
	}
	return 0
}

// graphAffinity is the candidate's mean edge weight to the rest of the pool.
func graphAffinity(id uuid.UUID, pool []domain.Candidate, affinity map[[2]uuid.UUID]float64) float64 {
	if len(pool) < 2 {
		return 0
	}
	var sum float64
	for _, other := range pool {
		if other.ItemID == id {
			continue
		}
		a, b := domain.CanonicalPair(id, other.ItemID)
		sum += affinity[[2]uuid.UUID{a, b}]
	}
	return capped(sum/float64(len(pool)-1), 1)
}

// conceptOveruse applies the damping schedule to retrievals inside the
// recent window.
func conceptOveruse(st *domain.NodeStats, now time.Time) float64 {
	if st.RecentWindowStart == nil || now.Sub(*st.RecentWindowStart) > ConceptRecentWindow {
		return 0
	}
	return capped(ConceptOverusePerRetrieval*float64(st.RecentRetrievals), ConceptOveruseCap)
}

func pairWeights(edges []domain.Edge) map[[2]uuid.UUID]float64 {
	weights := make(map[[2]uuid.UUID]float64, len(edges))
	for _, e := range edges {
		a, b := domain.CanonicalPair(e.FromID, e.ToID)
		key := [2]uuid.UUID{a, b}
		if e.Weight > weights[key] {
			weights[key] = e.Weight
		}
	}
	return weights
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
