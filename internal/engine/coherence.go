package engine

import (
	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
)

// DefaultCoherenceTopK bounds how many top candidates feed the coherence
// measurement.
const DefaultCoherenceTopK = 12

// Coherence is the mean pairwise edge weight across the given ids, using the
// strongest edge in either direction for each pair and 0 where no edge
// exists. With fewer than two ids coherence is defined as 0: maximal
// uncertainty, never a division by zero.
func Coherence(ids []uuid.UUID, edges []domain.Edge) float64 {
	if len(ids) < 2 {
		return 0
	}

	weights := make(map[[2]uuid.UUID]float64, len(edges))
	for _, e := range edges {
		a, b := domain.CanonicalPair(e.FromID, e.ToID)
		key := [2]uuid.UUID{a, b}
		if e.Weight > weights[key] {
			weights[key] = e.Weight
		}
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := domain.CanonicalPair(ids[i], ids[j])
			sum += weights[[2]uuid.UUID{a, b}]
			pairs++
		}
	}
	return sum / float64(pairs)
}

// Temperature is 1 minus coherence: how much disagreement remains in the
// candidate set.
func Temperature(ids []uuid.UUID, edges []domain.Edge) float64 {
	return 1 - Coherence(ids, edges)
}
