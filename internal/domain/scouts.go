package domain

import (
	"context"

	"github.com/google/uuid"
)

type ScoutKind string

const (
	ScoutLexical     ScoutKind = "lexical"
	ScoutVector      ScoutKind = "vector"
	ScoutMetadata    ScoutKind = "metadata"
	ScoutRecency     ScoutKind = "recency"
	ScoutGraph       ScoutKind = "graph"
	ScoutAnalogy     ScoutKind = "analogy"
	ScoutExploration ScoutKind = "exploration"
)

// Scout is an independent candidate generator. All scouts share one shape so
// pool merging is uniform and failure isolation is structural: a scout that
// errors or times out simply contributes nothing.
type Scout interface {
	Kind() ScoutKind
	Search(ctx context.Context, query string, namespaces []string, k int) ([]ScoutHit, error)
}

// LinkClient is the structural link collaborator used for terrace-0 graph
// expansion around high-scoring seeds.
type LinkClient interface {
	Neighbors(ctx context.Context, itemID uuid.UUID, direction string, depth int) ([]uuid.UUID, error)
}

// MetadataClient resolves item metadata for namespace and scope gating.
type MetadataClient interface {
	Get(ctx context.Context, itemID uuid.UUID) (*ItemMeta, error)
	GetBatch(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]ItemMeta, error)
}

// InterpretiveSelection is the terrace-2 collaborator's answer.
type InterpretiveSelection struct {
	Chosen     []uuid.UUID `json:"chosen"`
	Confidence float64     `json:"confidence"`
	Followups  []string    `json:"followups,omitempty"`
}

// InterpretiveClient is the expensive terrace-2 selector, invoked only when
// the escalation policy says so.
type InterpretiveClient interface {
	Select(ctx context.Context, query string, candidates []Candidate) (*InterpretiveSelection, error)
}

// EmbeddingClient produces query embeddings for the vector scout.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
