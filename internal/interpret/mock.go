package interpret

import (
	"context"
	"sort"

	"github.com/terracehq/terrace/internal/domain"
)

const mockMaxChosen = 5

// MockClient selects the highest-scored candidates without calling out.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Select(_ context.Context, _ string, candidates []domain.Candidate) (*domain.InterpretiveSelection, error) {
	sorted := make([]domain.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	n := len(sorted)
	if n > mockMaxChosen {
		n = mockMaxChosen
	}

	sel := &domain.InterpretiveSelection{Confidence: 0.9}
	for _, cand := range sorted[:n] {
		sel.Chosen = append(sel.Chosen, cand.ItemID)
	}
	return sel, nil
}
