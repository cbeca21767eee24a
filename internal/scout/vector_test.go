package scout

import (
	"context"
	"errors"
	"testing"

	"github.com/terracehq/terrace/internal/domain"
)

func TestVectorScoutWithoutEmbeddingClient(t *testing.T) {
	// Provider init can fail at startup (missing API key); the scout must
	// degrade into a normal scout error, never a panic.
	s := NewVectorScout(nil, nil)

	hits, err := s.Search(context.Background(), "cache invalidation", []string{"docs"}, 10)
	if !errors.Is(err, ErrNoEmbeddingClient) {
		t.Fatalf("expected ErrNoEmbeddingClient, got %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestExplorationScoutWithoutEmbeddingClient(t *testing.T) {
	s := NewExplorationScout(nil, nil)

	if _, err := s.Search(context.Background(), "cache invalidation", []string{"docs"}, 10); !errors.Is(err, ErrNoEmbeddingClient) {
		t.Fatalf("expected ErrNoEmbeddingClient, got %v", err)
	}
	if s.Kind() != domain.ScoutExploration {
		t.Fatalf("expected exploration kind, got %s", s.Kind())
	}
}
