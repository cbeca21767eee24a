package scout

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/terracehq/terrace/internal/domain"
)

// ErrNoEmbeddingClient is returned when the vector scout is wired without a
// working embedding provider. The fan-out treats it like any other scout
// failure: the scout contributes nothing and the receipt records it.
var ErrNoEmbeddingClient = errors.New("embedding client not configured")

// VectorScout searches by embedding cosine similarity against the vectors
// the external indexer stores per item.
type VectorScout struct {
	db        *pgxpool.Pool
	embedding domain.EmbeddingClient
	threshold float64
	kind      domain.ScoutKind
	reason    string
}

func NewVectorScout(db *pgxpool.Pool, embedding domain.EmbeddingClient) *VectorScout {
	return &VectorScout{
		db:        db,
		embedding: embedding,
		threshold: 0.3,
		kind:      domain.ScoutVector,
		reason:    "semantic similarity",
	}
}

// NewExplorationScout is the vector scout with a relaxed threshold; it fires
// only on the high-temperature second round.
func NewExplorationScout(db *pgxpool.Pool, embedding domain.EmbeddingClient) *VectorScout {
	return &VectorScout{
		db:        db,
		embedding: embedding,
		threshold: 0.1,
		kind:      domain.ScoutExploration,
		reason:    "exploration round",
	}
}

func (s *VectorScout) Kind() domain.ScoutKind {
	return s.kind
}

func (s *VectorScout) Search(ctx context.Context, query string, namespaces []string, k int) ([]domain.ScoutHit, error) {
	if s.embedding == nil {
		return nil, ErrNoEmbeddingClient
	}

	embedding, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS similarity, left(content, 240)
		 FROM items
		 WHERE embedding IS NOT NULL
		   AND namespace = ANY($2)
		   AND status = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(embedding), namespaces, domain.StatusActive, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.ScoutHit
	for rows.Next() {
		var hit domain.ScoutHit
		var similarity float64
		if err := rows.Scan(&hit.ItemID, &similarity, &hit.Snippet); err != nil {
			return nil, err
		}
		if similarity < s.threshold {
			continue
		}
		hit.Score = domain.Clamp01(similarity)
		hit.Scout = s.kind
		hit.Reason = s.reason
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
